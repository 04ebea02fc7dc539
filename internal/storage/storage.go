package storage

import (
	"errors"
	"fmt"

	"github.com/tactiboard/engine/pkg/core"
)

// ErrNotFound is returned when a sequence id is not stored.
var ErrNotFound = errors.New("not found")

// Backend is the interface all storage implementations must satisfy.
// Snapshots and sequences are stored as the JSON their types serialize to.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Board snapshot (single slot)
	SaveBoard(snap core.Snapshot) error
	LoadBoard() (core.Snapshot, bool, error)

	// Sequence library
	SaveSequence(seq core.AnimationSequence) error
	DeleteSequence(id string) error
	LoadSequences() ([]core.AnimationSequence, error)
}

// Exporter is an optional interface for backends that write a library
// file to disk.
type Exporter interface {
	ExportedPath() string
}

// Flusher is an optional interface for backends that buffer writes.
type Flusher interface {
	Flush() error
}

// SaveLibrary stores the board and every sequence.
func SaveLibrary(b Backend, snap core.Snapshot, seqs []core.AnimationSequence) error {
	if err := b.SaveBoard(snap); err != nil {
		return fmt.Errorf("saving board: %w", err)
	}
	for _, seq := range seqs {
		if err := b.SaveSequence(seq); err != nil {
			return fmt.Errorf("saving sequence %s: %w", seq.ID, err)
		}
	}
	return nil
}
