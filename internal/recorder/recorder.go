// Package recorder captures choreography as a list of phases.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/compiler"
	"github.com/tactiboard/engine/pkg/core"
)

// DefaultPhaseDuration is the duration given to a phase unless overridden.
const DefaultPhaseDuration = 3 * time.Second

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
	ErrNotPaused        = errors.New("recording is not paused")
	ErrIdle             = errors.New("no recording session")
	ErrPlaybackActive   = errors.New("playback is active")
)

// State is the recorder state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Board is the part of the snapshot store the recorder works against.
type Board interface {
	Snapshot() core.Snapshot
	Apply(m board.Mutation) error
	AddSequence(seq core.AnimationSequence) (string, error)
}

// Config holds recorder settings.
type Config struct {
	PhaseDuration time.Duration
	// nil selects the compiler defaults
	PhaseGap        *time.Duration
	MinDisplacement *float64
	Logger          *slog.Logger
}

// PhaseOption customizes the phase produced by Pause or Stop.
type PhaseOption func(*phaseOptions)

type phaseOptions struct {
	duration time.Duration
	overlay  []byte
}

// WithDuration overrides the phase duration.
func WithDuration(d time.Duration) PhaseOption {
	return func(o *phaseOptions) {
		if d > 0 {
			o.duration = d
		}
	}
}

// WithOverlay attaches a raster overlay to the phase.
func WithOverlay(raster []byte) PhaseOption {
	return func(o *phaseOptions) {
		o.overlay = raster
	}
}

// Recorder is the phase recording state machine:
// Idle -> Recording -> (Paused <-> Recording)* -> Idle.
type Recorder struct {
	mu    sync.Mutex
	board Board
	cfg   Config
	log   *slog.Logger

	state             State
	origin            map[string]core.Point
	baseline          map[string]core.Point
	connectorsAtStart []core.Connector
	pathsAtStart      []core.FreehandPath
	phases            []core.Phase

	playbackBusy func() bool
}

// New creates an idle recorder.
func New(b Board, cfg Config) *Recorder {
	if cfg.PhaseDuration <= 0 {
		cfg.PhaseDuration = DefaultPhaseDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		board: b,
		cfg:   cfg,
		log:   logger,
		state: StateIdle,
	}
}

// SetPlaybackGuard installs the check used to refuse recording while a
// sequence is playing.
func (r *Recorder) SetPlaybackGuard(busy func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbackBusy = busy
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Active reports whether a recording session is open.
func (r *Recorder) Active() bool {
	return r.State() != StateIdle
}

// Phases returns the phases captured so far in this session.
func (r *Recorder) Phases() []core.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Phase(nil), r.phases...)
}

// Start opens a session using the current board as the baseline of phase 1.
func (r *Recorder) Start() error {
	// the guard is consulted without r.mu held; playback checks Active the other way round
	r.mu.Lock()
	busy := r.playbackBusy
	r.mu.Unlock()
	if busy != nil && busy() {
		return ErrPlaybackActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrAlreadyRecording
	}

	snap := r.board.Snapshot()
	r.origin = snap.Positions()
	r.captureBaseline(snap)
	r.phases = nil
	r.state = StateRecording
	r.log.Info("recording started", "tokens", len(r.origin))
	return nil
}

// Pause closes the open phase with the current positions as its end.
func (r *Recorder) Pause(opts ...PhaseOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return fmt.Errorf("pause: %w", ErrNotRecording)
	}
	r.closePhase(opts)
	r.state = StatePaused
	return nil
}

// Resume reopens recording after Pause without creating a phase.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return fmt.Errorf("resume: %w", ErrNotPaused)
	}
	r.state = StateRecording
	r.log.Debug("recording resumed", "phases", len(r.phases))
	return nil
}

// NoteDrag must be called when a drag begins, before the move is applied.
// While paused it resumes recording implicitly, taking the current board
// with the dragged token at from as the new baseline. Returns true when an
// implicit resume happened.
func (r *Recorder) NoteDrag(tokenID string, from core.Point) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		return false
	}
	snap := r.board.Snapshot()
	r.captureBaseline(snap)
	r.baseline[tokenID] = from
	r.state = StateRecording
	r.log.Debug("recording auto-resumed by drag", "token", tokenID)
	return true
}

// Stop ends the session. When still recording, a final phase is closed
// first. The phases are compiled into a sequence which is stored in the
// library, and tokens are put back where they were before Start.
func (r *Recorder) Stop(opts ...PhaseOption) (core.AnimationSequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateIdle:
		return core.AnimationSequence{}, fmt.Errorf("stop: %w", ErrIdle)
	case StateRecording:
		r.closePhase(opts)
	}

	snap := r.board.Snapshot()
	seq := compiler.Compile(r.phases, compiler.Options{
		Field:           snap.View,
		PhaseGap:        r.cfg.PhaseGap,
		MinDisplacement: r.cfg.MinDisplacement,
	})

	phaseCount := len(r.phases)
	origin := r.origin
	r.state = StateIdle
	r.origin = nil
	r.baseline = nil

	id, err := r.board.AddSequence(seq)
	if err != nil {
		return core.AnimationSequence{}, fmt.Errorf("stop: storing sequence: %w", err)
	}
	seq.ID = id

	if err := r.board.Apply(board.SetPositions{Positions: origin}); err != nil {
		return seq, fmt.Errorf("stop: restoring positions: %w", err)
	}

	r.log.Info("recording stopped", "sequence", id, "phases", phaseCount, "steps", len(seq.Steps), "totalDuration", seq.TotalDuration)
	return seq, nil
}

func (r *Recorder) captureBaseline(snap core.Snapshot) {
	r.baseline = snap.Positions()
	r.connectorsAtStart = core.CloneConnectors(snap.Connectors)
	r.pathsAtStart = core.ClonePaths(snap.Paths)
}

// closePhase packages the open phase. Callers hold r.mu.
func (r *Recorder) closePhase(opts []PhaseOption) {
	o := phaseOptions{duration: r.cfg.PhaseDuration}
	for _, opt := range opts {
		opt(&o)
	}

	snap := r.board.Snapshot()
	end := snap.Positions()

	r.phases = append(r.phases, core.Phase{
		StartPositions:    core.ClonePositions(r.baseline),
		EndPositions:      end,
		ConnectorsAtStart: r.connectorsAtStart,
		PathsAtStart:      r.pathsAtStart,
		ConnectorsAtEnd:   core.CloneConnectors(snap.Connectors),
		PathsAtEnd:        core.ClonePaths(snap.Paths),
		Duration:          float64(o.duration) / float64(time.Millisecond),
		Overlay:           o.overlay,
	})

	r.baseline = core.ClonePositions(end)
	r.connectorsAtStart = core.CloneConnectors(snap.Connectors)
	r.pathsAtStart = core.ClonePaths(snap.Paths)
	r.log.Debug("phase captured", "phase", len(r.phases), "duration", o.duration)
}
