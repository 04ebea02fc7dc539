package v1

import (
	"fmt"
	"time"

	"github.com/tactiboard/engine/pkg/core"
)

// Build creates an Export from the library data
func Build(data *LibraryData) Export {
	export := Export{
		Version:    Version,
		ExportedAt: data.Time.UTC().Format(time.RFC3339),
		Board:      data.Board,
		Sequences:  make([]core.AnimationSequence, 0, len(data.Sequences)),
		Summary:    make([]SequenceSummary, 0, len(data.Sequences)),
	}

	for _, seq := range data.Sequences {
		export.Sequences = append(export.Sequences, seq)
		export.Summary = append(export.Summary, Summarize(seq))
	}

	return export
}

// Summarize counts the steps of a sequence.
func Summarize(seq core.AnimationSequence) SequenceSummary {
	s := SequenceSummary{
		ID:            seq.ID,
		Title:         seq.Title,
		TotalDuration: seq.TotalDuration,
		Steps:         len(seq.Steps),
		Loop:          seq.Loop,
	}
	for _, step := range seq.Steps {
		if _, ok := step.(core.MoveStep); ok {
			s.Moves++
		}
	}
	return s
}

// Validate checks a decoded export before it is loaded.
func Validate(e Export) error {
	if e.Version != Version {
		return fmt.Errorf("unsupported library version %d", e.Version)
	}
	seen := make(map[string]bool, len(e.Sequences))
	for i, seq := range e.Sequences {
		if seq.ID == "" {
			return fmt.Errorf("sequence %d has no id", i)
		}
		if seen[seq.ID] {
			return fmt.Errorf("duplicate sequence id %q", seq.ID)
		}
		seen[seq.ID] = true
	}
	return nil
}
