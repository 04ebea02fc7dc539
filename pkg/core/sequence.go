package core

import (
	"encoding/json"
	"fmt"
)

// Easing names a motion curve applied to a move step.
type Easing string

const (
	EasingLinear    Easing = "linear"
	EasingEaseOut   Easing = "easeOut"
	EasingEaseInOut Easing = "easeInOut"
)

// Step kinds as they appear in serialized sequences.
const (
	StepMove            = "move"
	StepRevealConnector = "revealConnector"
	StepRevealPath      = "revealPath"
	StepRevealOverlay   = "revealOverlay"
)

// Timing is the window of a step in milliseconds from sequence start.
type Timing struct {
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// Window returns the step's timing.
func (t Timing) Window() Timing { return t }

// Contains reports whether elapsed falls inside [Timestamp, Timestamp+Duration].
func (t Timing) Contains(elapsed float64) bool {
	return elapsed >= t.Timestamp && elapsed <= t.Timestamp+t.Duration
}

// Step is one timestamped instruction inside a sequence.
// The set of implementations is closed: MoveStep, RevealConnectorStep,
// RevealPathStep and RevealOverlayStep.
type Step interface {
	Kind() string
	Window() Timing
	isStep()
}

// MoveStep interpolates a token between two normalized positions.
// From or To may be nil when a sequence arrives from an external source;
// such steps are skipped during playback.
type MoveStep struct {
	Timing
	TokenID string `json:"tokenId"`
	From    *Point `json:"from,omitempty"`
	To      *Point `json:"to,omitempty"`
	Easing  Easing `json:"easing"`
}

// RevealConnectorStep shows a connector for the duration of its window.
type RevealConnectorStep struct {
	Timing
	Connector Connector `json:"connector"`
}

// RevealPathStep shows a free-hand path for the duration of its window.
type RevealPathStep struct {
	Timing
	Path FreehandPath `json:"path"`
}

// RevealOverlayStep shows a raster overlay for the duration of its window.
type RevealOverlayStep struct {
	Timing
	Raster []byte `json:"raster"`
}

func (MoveStep) Kind() string            { return StepMove }
func (RevealConnectorStep) Kind() string { return StepRevealConnector }
func (RevealPathStep) Kind() string      { return StepRevealPath }
func (RevealOverlayStep) Kind() string   { return StepRevealOverlay }

func (MoveStep) isStep()            {}
func (RevealConnectorStep) isStep() {}
func (RevealPathStep) isStep()      {}
func (RevealOverlayStep) isStep()   {}

// Steps is an ordered step list with a type-tagged JSON form.
type Steps []Step

// stepJSON is the wire shape of a single step.
type stepJSON struct {
	Type      string        `json:"type"`
	Timestamp float64       `json:"timestamp"`
	Duration  float64       `json:"duration"`
	TokenID   string        `json:"tokenId,omitempty"`
	From      *Point        `json:"from,omitempty"`
	To        *Point        `json:"to,omitempty"`
	Easing    Easing        `json:"easing,omitempty"`
	Connector *Connector    `json:"connector,omitempty"`
	Path      *FreehandPath `json:"path,omitempty"`
	Raster    []byte        `json:"raster,omitempty"`
}

// MarshalJSON encodes each step with a "type" discriminator.
func (s Steps) MarshalJSON() ([]byte, error) {
	out := make([]stepJSON, 0, len(s))
	for i, step := range s {
		w := step.Window()
		sj := stepJSON{Type: step.Kind(), Timestamp: w.Timestamp, Duration: w.Duration}
		switch v := step.(type) {
		case MoveStep:
			sj.TokenID, sj.From, sj.To, sj.Easing = v.TokenID, v.From, v.To, v.Easing
		case RevealConnectorStep:
			c := v.Connector
			sj.Connector = &c
		case RevealPathStep:
			p := v.Path
			sj.Path = &p
		case RevealOverlayStep:
			sj.Raster = v.Raster
		default:
			return nil, fmt.Errorf("step %d: unsupported step type %T", i, step)
		}
		out = append(out, sj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a type-tagged step list. Unknown step types are an error.
func (s *Steps) UnmarshalJSON(data []byte) error {
	var raw []stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Steps, 0, len(raw))
	for i, sj := range raw {
		t := Timing{Timestamp: sj.Timestamp, Duration: sj.Duration}
		switch sj.Type {
		case StepMove:
			out = append(out, MoveStep{Timing: t, TokenID: sj.TokenID, From: sj.From, To: sj.To, Easing: sj.Easing})
		case StepRevealConnector:
			var c Connector
			if sj.Connector != nil {
				c = *sj.Connector
			}
			out = append(out, RevealConnectorStep{Timing: t, Connector: c})
		case StepRevealPath:
			var p FreehandPath
			if sj.Path != nil {
				p = *sj.Path
			}
			out = append(out, RevealPathStep{Timing: t, Path: p})
		case StepRevealOverlay:
			out = append(out, RevealOverlayStep{Timing: t, Raster: sj.Raster})
		default:
			return fmt.Errorf("step %d: unknown step type %q", i, sj.Type)
		}
	}
	*s = out
	return nil
}

// AnimationSequence is a compiled, replayable timeline.
type AnimationSequence struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	TotalDuration    float64  `json:"totalDuration"`
	Steps            Steps    `json:"steps"`
	Loop             bool     `json:"loop"`
	PendingQuestions []string `json:"pendingQuestions,omitempty"`
}

// PlaybackStatus is the state of the playback engine.
type PlaybackStatus string

const (
	PlaybackStopped PlaybackStatus = "stopped"
	PlaybackPlaying PlaybackStatus = "playing"
	PlaybackPaused  PlaybackStatus = "paused"
)

// PlaybackState is the externally visible playback state.
type PlaybackState struct {
	Status           PlaybackStatus `json:"status"`
	CurrentTime      float64        `json:"currentTime"`
	Speed            float64        `json:"speed"`
	ActiveSequenceID string         `json:"activeSequenceId"`
}
