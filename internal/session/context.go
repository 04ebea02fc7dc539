// Package session wires the board, recorder, playback engine and path
// sampler into one explicit context shared by every command surface.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/playback"
	"github.com/tactiboard/engine/internal/recorder"
	"github.com/tactiboard/engine/internal/sampler"
	"github.com/tactiboard/engine/pkg/core"
)

// ErrPlaybackActive is returned for edits attempted while a sequence plays
// or sampled paths are replayed.
var ErrPlaybackActive = errors.New("board is locked by playback")

// Config groups the settings of the wired components.
type Config struct {
	Board    board.Config
	Recorder recorder.Config
	Playback playback.Config
	Logger   *slog.Logger
}

// Context holds the board and the components animating it.
type Context struct {
	mu sync.RWMutex

	Board    *board.Store
	Recorder *recorder.Recorder
	Playback *playback.Engine
	Sampler  *sampler.Sampler

	logger *slog.Logger
}

// NewContext builds the components around initial and installs the guards
// that keep recording, playback and sample replay mutually exclusive.
func NewContext(initial core.Snapshot, cfg Config) (*Context, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Board.Logger == nil {
		cfg.Board.Logger = logger.With("component", "board")
	}
	if cfg.Recorder.Logger == nil {
		cfg.Recorder.Logger = logger.With("component", "recorder")
	}
	if cfg.Playback.Logger == nil {
		cfg.Playback.Logger = logger.With("component", "playback")
	}

	store := board.New(initial, cfg.Board)
	rec := recorder.New(store, cfg.Recorder)
	eng, err := playback.New(store, cfg.Playback)
	if err != nil {
		return nil, fmt.Errorf("creating playback engine: %w", err)
	}
	smp := sampler.New(store, logger.With("component", "sampler"))

	rec.SetPlaybackGuard(func() bool { return eng.Active() || smp.Active() })
	eng.SetRecordingGuard(func() bool { return rec.Active() || smp.Active() })
	smp.SetBusyGuard(func() bool { return rec.Active() || eng.Active() })

	return &Context{
		Board:    store,
		Recorder: rec,
		Playback: eng,
		Sampler:  smp,
		logger:   logger,
	}, nil
}

// DragToken moves a token as a user drag would: the recorder sees the
// drag-from position first, then the move is checkpointed, then the sampler
// receives the new position if it is capturing.
func (c *Context) DragToken(id string, to core.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Animating() {
		return fmt.Errorf("drag %s: %w", id, ErrPlaybackActive)
	}
	tok, ok := c.Board.Snapshot().Token(id)
	if !ok {
		return fmt.Errorf("drag %s: %w", id, board.ErrUnknownToken)
	}

	if c.Recorder.NoteDrag(id, tok.Position) {
		c.logger.Debug("drag resumed recording", "token", id)
	}
	if err := c.Board.Apply(board.MoveToken{ID: id, To: to}); err != nil {
		return err
	}
	if c.Sampler.Sampling() {
		if err := c.Sampler.Push(id, to); err != nil {
			return err
		}
	}
	return nil
}

// Restore replaces the board and library with persisted state.
func (c *Context) Restore(snap core.Snapshot, seqs []core.AnimationSequence) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Playback.Active() || c.Recorder.Active() || c.Sampler.Active() {
		return fmt.Errorf("restore: %w", ErrPlaybackActive)
	}
	c.Board.Load(snap)
	c.Board.LoadLibrary(seqs)
	c.logger.Info("board restored", "tokens", len(snap.Tokens), "sequences", len(seqs))
	return nil
}

// Animating reports whether playback or sample replay is writing frames to
// the board. Checkpointing edits are refused until it stops.
func (c *Context) Animating() bool {
	return c.Playback.Active() || c.Sampler.Playing()
}

// Busy reports whether any animation channel or recording is active.
func (c *Context) Busy() bool {
	return c.Recorder.Active() || c.Playback.Active() || c.Sampler.Active()
}
