// Package compiler turns recorded phases into a flat animation timeline.
package compiler

import (
	"sort"
	"time"

	"github.com/tactiboard/engine/internal/geo"
	"github.com/tactiboard/engine/pkg/core"
)

const (
	// DefaultPhaseGap separates consecutive phases on the timeline.
	DefaultPhaseGap = 500 * time.Millisecond
	// DefaultMinDisplacement is the movement, in field units, at or below
	// which a token is treated as not having moved.
	DefaultMinDisplacement = 1.0
)

// Options controls compilation.
type Options struct {
	// Field is used to normalize positions into the unit square.
	Field core.ViewSettings
	// PhaseGap and MinDisplacement take their defaults when nil. Zero is
	// a valid setting for both.
	PhaseGap        *time.Duration
	MinDisplacement *float64
	Title           string
	Description     string
}

func (o Options) gap() float64 {
	d := DefaultPhaseGap
	if o.PhaseGap != nil {
		d = *o.PhaseGap
	}
	return float64(d) / float64(time.Millisecond)
}

func (o Options) minDisplacement() float64 {
	if o.MinDisplacement != nil {
		return *o.MinDisplacement
	}
	return DefaultMinDisplacement
}

// Compile lays phases out one after another and emits their steps.
// It is pure: the same phases and options always yield an equal sequence.
// The returned sequence has no id; the library assigns one.
func Compile(phases []core.Phase, opts Options) core.AnimationSequence {
	gap := opts.gap()
	threshold := opts.minDisplacement()

	seq := core.AnimationSequence{
		Title:       opts.Title,
		Description: opts.Description,
		Steps:       core.Steps{},
	}

	cursor := 0.0
	for i, phase := range phases {
		duration := phase.Duration
		timing := core.Timing{Timestamp: cursor, Duration: duration}

		if len(phase.Overlay) > 0 {
			seq.Steps = append(seq.Steps, core.RevealOverlayStep{Timing: timing, Raster: phase.Overlay})
		}
		for _, c := range core.CloneConnectors(phase.ConnectorsAtStart) {
			seq.Steps = append(seq.Steps, core.RevealConnectorStep{Timing: timing, Connector: c})
		}
		for _, p := range core.ClonePaths(phase.PathsAtStart) {
			seq.Steps = append(seq.Steps, core.RevealPathStep{Timing: timing, Path: p})
		}

		for _, id := range sortedIDs(phase.StartPositions) {
			from := phase.StartPositions[id]
			to, ok := phase.EndPositions[id]
			if !ok {
				continue
			}
			if geo.Displacement(from, to) <= threshold {
				continue
			}
			nFrom := geo.Normalize(from, opts.Field)
			nTo := geo.Normalize(to, opts.Field)
			seq.Steps = append(seq.Steps, core.MoveStep{
				Timing:  timing,
				TokenID: id,
				From:    &nFrom,
				To:      &nTo,
				Easing:  core.EasingEaseInOut,
			})
		}

		seq.TotalDuration += duration
		if i > 0 {
			seq.TotalDuration += gap
		}
		cursor += duration + gap
	}

	return seq
}

// MoveCount returns the number of move steps in seq.
func MoveCount(seq core.AnimationSequence) int {
	n := 0
	for _, s := range seq.Steps {
		if _, ok := s.(core.MoveStep); ok {
			n++
		}
	}
	return n
}

func sortedIDs(m map[string]core.Point) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
