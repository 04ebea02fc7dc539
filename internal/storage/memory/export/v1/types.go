// Package v1 contains the v1 on-disk format of a board library.
package v1

import (
	"time"

	"github.com/tactiboard/engine/pkg/core"
)

// Version is written to every v1 file.
const Version = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version    int                      `json:"version"`
	ExportedAt string                   `json:"exportedAt"`
	Board      *core.Snapshot           `json:"board,omitempty"`
	Sequences  []core.AnimationSequence `json:"sequences"`
	Summary    []SequenceSummary        `json:"summary"`
}

// SequenceSummary is a listing entry readable without decoding steps.
type SequenceSummary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	TotalDuration float64 `json:"totalDuration"`
	Steps         int     `json:"steps"`
	Moves         int     `json:"moves"`
	Loop          bool    `json:"loop"`
}

// LibraryData contains all the data needed to build an export
type LibraryData struct {
	Board     *core.Snapshot
	Sequences []core.AnimationSequence
	Time      time.Time
}
