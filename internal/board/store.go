// Package board holds the board state: the live snapshot, its undo/redo
// history, the sequence library and the fields written by playback.
package board

import (
	"log/slog"
	"sync"

	"github.com/tactiboard/engine/internal/history"
	"github.com/tactiboard/engine/pkg/core"
)

// Config holds Store settings.
type Config struct {
	HistoryCapacity int
	Logger          *slog.Logger
}

// Reveals is the set of connectors, paths and overlay shown by playback.
type Reveals struct {
	Connectors []core.Connector
	Paths      []core.FreehandPath
	Overlay    []byte
}

// Frame is one batch of playback writes. A nil Reveals leaves the
// currently visible set untouched.
type Frame struct {
	Positions map[string]core.Point
	Reveals   *Reveals
}

// Store is the snapshot store. Editing goes through Apply and is
// checkpointed; playback goes through WriteFrame and never touches history.
type Store struct {
	mu      sync.RWMutex
	live    core.Snapshot
	history *history.Log[core.Snapshot]
	reveals Reveals

	library []core.AnimationSequence

	logger *slog.Logger
}

// New creates a store whose history starts at initial.
func New(initial core.Snapshot, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		live:    initial.Clone(),
		history: history.New(cfg.HistoryCapacity, initial.Clone()),
		logger:  logger,
	}
}

// Apply performs a mutation and pushes the resulting snapshot onto the
// history log. A failing mutation leaves the board and history unchanged.
func (s *Store) Apply(m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.live.Clone()
	if err := m.apply(&work); err != nil {
		s.logger.Debug("mutation rejected", "mutation", m.Name(), "error", err)
		return err
	}
	s.live = work
	s.history.Push(work.Clone())
	s.logger.Debug("mutation applied", "mutation", m.Name(), "history", s.history.Len())
	return nil
}

// Undo restores the previous checkpoint. Returns false at the oldest entry.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.live = snap.Clone()
	return true
}

// Redo restores the next checkpoint. Returns false at the newest entry.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.live = snap.Clone()
	return true
}

// Load replaces the board with snap and resets history to it.
func (s *Store) Load(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = snap.Clone()
	s.history.Reset(snap.Clone())
	s.reveals = Reveals{}
}

// Snapshot returns a copy of the live board.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Clone()
}

// Positions returns the live token positions keyed by id.
func (s *Store) Positions() map[string]core.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Positions()
}

// View returns the live view settings.
func (s *Store) View() core.ViewSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.View
}

// HistoryLen returns the number of checkpoints held.
func (s *Store) HistoryLen() int {
	return s.history.Len()
}

// HistoryCursor returns the index of the live checkpoint.
func (s *Store) HistoryCursor() int {
	return s.history.Cursor()
}

// WriteFrame applies a batch of playback writes to the live fields.
// Unknown token ids are ignored.
func (s *Store) WriteFrame(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(f.Positions) > 0 {
		for i := range s.live.Tokens {
			if p, ok := f.Positions[s.live.Tokens[i].ID]; ok {
				s.live.Tokens[i].Position = p
			}
		}
	}
	if f.Reveals != nil {
		s.reveals = Reveals{
			Connectors: core.CloneConnectors(f.Reveals.Connectors),
			Paths:      core.ClonePaths(f.Reveals.Paths),
			Overlay:    f.Reveals.Overlay,
		}
	}
}

// Reveals returns the connectors, paths and overlay currently shown by playback.
func (s *Store) Reveals() Reveals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Reveals{
		Connectors: core.CloneConnectors(s.reveals.Connectors),
		Paths:      core.ClonePaths(s.reveals.Paths),
		Overlay:    s.reveals.Overlay,
	}
}

// ClearOverlay drops the overlay shown by playback.
func (s *Store) ClearOverlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reveals.Overlay = nil
}
