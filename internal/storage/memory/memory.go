// Package memory keeps the board library in memory and exports it as a
// (optionally gzipped) JSON file.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/storage"
	"github.com/tactiboard/engine/pkg/core"
)

// Backend stores the board and sequences in memory and exports to JSON
type Backend struct {
	cfg       config.MemoryConfig
	board     *core.Snapshot
	sequences []core.AnimationSequence

	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
		now: time.Now,
	}
}

// Init loads a previously exported library from the output directory, if any.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	export, found, err := b.readExport()
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	if !found {
		return nil
	}
	b.board = export.Board
	b.sequences = export.Sequences
	return nil
}

// Close writes the library to disk
func (b *Backend) Close() error {
	return b.Flush()
}

// Flush exports the library now.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// ExportedPath returns the file written by the last export.
func (b *Backend) ExportedPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// SaveBoard replaces the stored snapshot
func (b *Backend) SaveBoard(snap core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := snap.Clone()
	b.board = &c
	return nil
}

// LoadBoard returns the stored snapshot, if one was saved
func (b *Backend) LoadBoard() (core.Snapshot, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.board == nil {
		return core.Snapshot{}, false, nil
	}
	return b.board.Clone(), true, nil
}

// SaveSequence stores seq, replacing a sequence with the same id
func (b *Backend) SaveSequence(seq core.AnimationSequence) error {
	if seq.ID == "" {
		return fmt.Errorf("save sequence: empty id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.sequences {
		if b.sequences[i].ID == seq.ID {
			b.sequences[i] = seq
			return nil
		}
	}
	b.sequences = append(b.sequences, seq)
	return nil
}

// DeleteSequence removes a stored sequence
func (b *Backend) DeleteSequence(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.sequences {
		if b.sequences[i].ID == id {
			b.sequences = append(b.sequences[:i], b.sequences[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete sequence %s: %w", id, storage.ErrNotFound)
}

// LoadSequences returns the stored sequences in insertion order
func (b *Backend) LoadSequences() ([]core.AnimationSequence, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.AnimationSequence(nil), b.sequences...), nil
}
