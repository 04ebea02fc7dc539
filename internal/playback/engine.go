// Package playback replays compiled sequences against the board's live fields.
//
// The engine does not own a timer. Callers drive it by calling Tick with the
// current time, typically once per display frame (see FrameLoop).
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/easing"
	"github.com/tactiboard/engine/internal/geo"
	"github.com/tactiboard/engine/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	MinSpeed     = 0.1
	MaxSpeed     = 3.0
	DefaultSpeed = 1.0
)

var (
	ErrUnknownSequence = errors.New("unknown sequence")
	ErrNotPlaying      = errors.New("playback is not playing")
	ErrNotPaused       = errors.New("playback is not paused")
	ErrRecordingActive = errors.New("recording is active")
)

// Board is the part of the snapshot store playback reads from and writes to.
type Board interface {
	Sequence(id string) (core.AnimationSequence, bool)
	View() core.ViewSettings
	WriteFrame(f board.Frame)
	ClearOverlay()
}

// Report summarizes one playback run when it finishes or is stopped.
type Report struct {
	SequenceID string
	Title      string
	Position   float64 // ms into the sequence when the run ended
	Total      float64
	Frames     int
	Skipped    int
	Speed      float64
	Completed  bool
	WallTime   time.Duration
}

// Config holds engine settings.
type Config struct {
	Logger *slog.Logger
	// Meter records frame and skip counts. Defaults to the global provider.
	Meter metric.Meter
	// OnFinish is called outside the engine lock whenever a run ends.
	OnFinish func(Report)
}

// Engine is the playback state machine: Stopped -> Playing <-> Paused -> Stopped.
type Engine struct {
	mu    sync.Mutex
	board Board
	log   *slog.Logger

	state core.PlaybackState
	seq   core.AnimationSequence

	// virtual clock: elapsed = anchorElapsed + (now - anchorWall) * speed
	anchorWall    time.Time
	anchorElapsed float64
	rebase        bool

	generation uint64
	runStart   time.Time
	lastTick   time.Time
	frames     int
	skipped    int

	recordingBusy func() bool
	onFinish      func(Report)

	// OTEL metrics
	frameCounter   metric.Int64Counter
	skippedCounter metric.Int64Counter
}

// New creates a stopped engine.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(b Board, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		board:    b,
		log:      logger,
		onFinish: cfg.OnFinish,
		state:    core.PlaybackState{Status: core.PlaybackStopped, Speed: DefaultSpeed},
	}

	m := cfg.Meter
	if m == nil {
		m = otel.Meter("github.com/tactiboard/engine/internal/playback")
	}
	var err error

	e.frameCounter, err = m.Int64Counter(
		"playback.frames",
		metric.WithDescription("Total frames written by playback"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frame counter: %w", err)
	}

	e.skippedCounter, err = m.Int64Counter(
		"playback.steps.skipped",
		metric.WithDescription("Total malformed steps skipped during playback"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	return e, nil
}

// SetRecordingGuard installs the check used to refuse playback while a
// recording session is open.
func (e *Engine) SetRecordingGuard(busy func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordingBusy = busy
}

// State returns a copy of the playback state.
func (e *Engine) State() core.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active reports whether a sequence is playing or paused.
func (e *Engine) Active() bool {
	return e.State().Status != core.PlaybackStopped
}

// Generation identifies the current tick session. It changes on every
// Play, Resume and Stop so that stale schedulers can exit.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Play starts the sequence from the beginning, superseding any running session.
func (e *Engine) Play(id string, now time.Time) error {
	e.mu.Lock()
	busy := e.recordingBusy
	e.mu.Unlock()
	if busy != nil && busy() {
		return fmt.Errorf("play %s: %w", id, ErrRecordingActive)
	}

	seq, ok := e.board.Sequence(id)
	if !ok {
		return fmt.Errorf("play %s: %w", id, ErrUnknownSequence)
	}

	e.mu.Lock()
	var prev *Report
	if e.state.Status != core.PlaybackStopped {
		r := e.reportLocked(false)
		prev = &r
	}
	e.generation++
	e.seq = seq
	e.state.Status = core.PlaybackPlaying
	e.state.CurrentTime = 0
	e.state.ActiveSequenceID = seq.ID
	e.anchorWall = now
	e.anchorElapsed = 0
	e.rebase = false
	e.runStart = now
	e.lastTick = now
	e.frames = 0
	e.skipped = 0
	e.mu.Unlock()

	e.finish(prev)
	e.log.Info("playback started", "sequence", seq.ID, "steps", len(seq.Steps), "totalDuration", seq.TotalDuration)
	return nil
}

// Tick advances the current session to now. It returns false when no
// further ticks should be scheduled.
func (e *Engine) Tick(now time.Time) bool {
	return e.TickSession(e.Generation(), now)
}

// TickSession advances playback only if gen is still the current session.
// A superseded session returns false without touching the board.
func (e *Engine) TickSession(gen uint64, now time.Time) bool {
	e.mu.Lock()
	more, report := e.tickLocked(gen, now)
	e.mu.Unlock()

	e.finish(report)
	return more
}

func (e *Engine) tickLocked(gen uint64, now time.Time) (bool, *Report) {
	if gen != e.generation || e.state.Status != core.PlaybackPlaying {
		return false, nil
	}

	if e.rebase {
		e.anchorWall = now
		e.anchorElapsed = e.state.CurrentTime
		e.rebase = false
	}
	e.lastTick = now

	elapsed := e.anchorElapsed + float64(now.Sub(e.anchorWall))/float64(time.Millisecond)*e.state.Speed
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed >= e.seq.TotalDuration {
		if e.seq.Loop && e.seq.TotalDuration > 0 {
			elapsed = math.Mod(elapsed, e.seq.TotalDuration)
			e.anchorWall = now
			e.anchorElapsed = elapsed
		} else {
			e.state.CurrentTime = e.seq.TotalDuration
			e.state.Status = core.PlaybackStopped
			r := e.reportLocked(true)
			e.log.Debug("playback finished", "sequence", e.seq.ID, "frames", e.frames)
			return false, &r
		}
	}

	e.writeFrameLocked(elapsed)
	e.state.CurrentTime = elapsed
	return true, nil
}

// writeFrameLocked resolves the steps active at elapsed and writes them to
// the board in one batch. Reveals replace the visible set.
func (e *Engine) writeFrameLocked(elapsed float64) {
	view := e.board.View()
	positions := make(map[string]core.Point)
	reveals := &board.Reveals{}
	skipped := 0

	for _, step := range e.seq.Steps {
		if step == nil {
			skipped++
			continue
		}
		w := step.Window()
		if !w.Contains(elapsed) {
			continue
		}
		switch s := step.(type) {
		case core.MoveStep:
			if s.TokenID == "" || s.From == nil || s.To == nil {
				skipped++
				continue
			}
			p := 1.0
			if s.Duration > 0 {
				p = (elapsed - s.Timestamp) / s.Duration
			}
			eased := easing.Apply(s.Easing, p)
			positions[s.TokenID] = geo.Denormalize(geo.Lerp(*s.From, *s.To, eased), view)
		case core.RevealConnectorStep:
			reveals.Connectors = append(reveals.Connectors, s.Connector)
		case core.RevealPathStep:
			reveals.Paths = append(reveals.Paths, s.Path)
		case core.RevealOverlayStep:
			reveals.Overlay = s.Raster
		default:
			skipped++
		}
	}

	e.board.WriteFrame(board.Frame{Positions: positions, Reveals: reveals})
	e.frames++
	e.skipped += skipped

	attrs := metric.WithAttributes(attribute.String("sequence", e.seq.ID))
	e.frameCounter.Add(context.Background(), 1, attrs)
	if skipped > 0 {
		e.skippedCounter.Add(context.Background(), int64(skipped), attrs)
	}
}

// Pause stops ticking and keeps the current time.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != core.PlaybackPlaying {
		return fmt.Errorf("pause: %w", ErrNotPlaying)
	}
	e.state.Status = core.PlaybackPaused
	e.generation++
	return nil
}

// Resume continues from the paused time. Interpolated values match what
// uninterrupted playback would have produced at the same sequence time.
func (e *Engine) Resume(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != core.PlaybackPaused {
		return fmt.Errorf("resume: %w", ErrNotPaused)
	}
	e.generation++
	e.anchorWall = now
	e.anchorElapsed = e.state.CurrentTime
	e.rebase = false
	e.lastTick = now
	e.state.Status = core.PlaybackPlaying
	return nil
}

// Stop ends the session, rewinds to zero and clears the overlay.
func (e *Engine) Stop() {
	e.mu.Lock()
	var report *Report
	if e.state.Status != core.PlaybackStopped {
		r := e.reportLocked(false)
		report = &r
	}
	e.generation++
	e.state.Status = core.PlaybackStopped
	e.state.CurrentTime = 0
	e.rebase = false
	e.mu.Unlock()

	e.board.ClearOverlay()
	e.finish(report)
}

// Seek moves playback to t milliseconds, clamped to the sequence length.
// It does not resume a paused or stopped engine. While paused, the frame
// at t is written immediately so scrubbing is visible.
func (e *Engine) Seek(t float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > e.seq.TotalDuration {
		t = e.seq.TotalDuration
	}
	e.state.CurrentTime = t
	switch e.state.Status {
	case core.PlaybackPlaying:
		e.rebase = true
	case core.PlaybackPaused:
		e.writeFrameLocked(t)
	}
	return t
}

// SetSpeed clamps s to [MinSpeed, MaxSpeed]. NaN is ignored. While playing,
// the clock is re-anchored at the last tick, so time up to that tick keeps
// the old speed and everything after it runs at s. Returns the speed in effect.
func (e *Engine) SetSpeed(s float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.IsNaN(s) {
		return e.state.Speed
	}
	if s < MinSpeed {
		s = MinSpeed
	} else if s > MaxSpeed {
		s = MaxSpeed
	}
	if e.state.Status == core.PlaybackPlaying && !e.rebase {
		e.anchorWall = e.lastTick
		e.anchorElapsed = e.state.CurrentTime
	}
	e.state.Speed = s
	return s
}

func (e *Engine) reportLocked(completed bool) Report {
	return Report{
		SequenceID: e.seq.ID,
		Title:      e.seq.Title,
		Position:   e.state.CurrentTime,
		Total:      e.seq.TotalDuration,
		Frames:     e.frames,
		Skipped:    e.skipped,
		Speed:      e.state.Speed,
		Completed:  completed,
		WallTime:   e.lastTick.Sub(e.runStart),
	}
}

func (e *Engine) finish(r *Report) {
	if r == nil || e.onFinish == nil {
		return
	}
	e.onFinish(*r)
}
