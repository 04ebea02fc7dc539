// Package refine accepts externally produced sequence revisions.
package refine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tactiboard/engine/pkg/core"
)

var (
	ErrMissingSteps = errors.New("candidate sequence has no steps field")
	ErrEmptySteps   = errors.New("candidate sequence has no steps")
)

// Candidate is a decoded refinement.
type Candidate struct {
	core.AnimationSequence
	// LoopSet is true when the payload carried a loop field, even false.
	LoopSet bool
}

// Decode parses a candidate sequence. The payload is rejected when steps is
// absent, null or empty, or when any step has an unknown type. A missing
// totalDuration is derived from the steps. The id is always cleared: a
// refinement is stored as a new sequence.
func Decode(data []byte) (Candidate, error) {
	var fields struct {
		Steps json.RawMessage `json:"steps"`
		Loop  *bool           `json:"loop"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	raw := bytes.TrimSpace(fields.Steps)
	if len(raw) == 0 {
		return Candidate{}, ErrMissingSteps
	}
	if bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("[]")) {
		return Candidate{}, ErrEmptySteps
	}

	var seq core.AnimationSequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	if len(seq.Steps) == 0 {
		return Candidate{}, ErrEmptySteps
	}

	seq.ID = ""
	if seq.TotalDuration <= 0 {
		seq.TotalDuration = End(seq.Steps)
	}
	return Candidate{AnimationSequence: seq, LoopSet: fields.Loop != nil}, nil
}

// End returns the latest timestamp+duration over steps.
func End(steps core.Steps) float64 {
	var end float64
	for _, s := range steps {
		if s == nil {
			continue
		}
		w := s.Window()
		end = max(end, w.Timestamp+w.Duration)
	}
	return end
}

// Merge fills the title and description of candidate from the sequence it
// revises when the candidate leaves them empty. The loop flag is inherited
// only when the payload omitted it.
func Merge(old core.AnimationSequence, c Candidate) core.AnimationSequence {
	seq := c.AnimationSequence
	if seq.Title == "" {
		seq.Title = old.Title
	}
	if seq.Description == "" {
		seq.Description = old.Description
	}
	if !c.LoopSet {
		seq.Loop = old.Loop
	}
	return seq
}
