// Package sqlitestorage keeps the library in an in-memory SQLite database
// and copies it to a file with VACUUM INTO. Queries go through the embedded
// gorm backend.
package sqlitestorage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tactiboard/engine/internal/database"
	gormstorage "github.com/tactiboard/engine/internal/storage/gorm"
	"github.com/tactiboard/engine/pkg/core"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string
}

// Backend is the gorm backend over a private in-memory database. Writes
// mark it dirty; the dump loop only copies a dirty database.
type Backend struct {
	*gormstorage.Backend
	db    *gorm.DB
	cfg   Config
	log   *slog.Logger
	dirty atomic.Bool
	dumps atomic.Int64

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New opens the in-memory database. Every backend gets its own.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.OpenMemory("library-" + uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		db:      db,
		cfg:     cfg,
		log:     logger.With("storage", "sqlite"),
		stop:    make(chan struct{}),
	}, nil
}

// Init migrates the schema, loads the previous dump when one exists and
// starts the dump loop.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if err := b.restore(); err != nil {
		return fmt.Errorf("restoring %s: %w", b.cfg.DumpPath, err)
	}
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump loop, writes a last dump when anything changed and
// closes the database.
func (b *Backend) Close() error {
	b.once.Do(func() { close(b.stop) })
	b.wg.Wait()
	if err := b.dumpIfDirty(); err != nil {
		b.log.Error("final dump failed", "error", err)
	}
	return b.Backend.Close()
}

// ExportedPath returns the dump file.
func (b *Backend) ExportedPath() string {
	return b.cfg.DumpPath
}

// Dumps returns how many dumps were written.
func (b *Backend) Dumps() int64 {
	return b.dumps.Load()
}

// SaveBoard upserts the board and marks the database dirty.
func (b *Backend) SaveBoard(snap core.Snapshot) error {
	return b.changed(b.Backend.SaveBoard(snap))
}

// SaveSequence upserts a sequence and marks the database dirty.
func (b *Backend) SaveSequence(seq core.AnimationSequence) error {
	return b.changed(b.Backend.SaveSequence(seq))
}

// DeleteSequence removes a sequence and marks the database dirty.
func (b *Backend) DeleteSequence(id string) error {
	return b.changed(b.Backend.DeleteSequence(id))
}

func (b *Backend) changed(err error) error {
	if err == nil {
		b.dirty.Store(true)
	}
	return err
}

// restore copies the board and sequences of an existing dump into memory.
// A restored database is clean.
func (b *Backend) restore() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	if _, err := os.Stat(b.cfg.DumpPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	fileDB, err := database.OpenSQLite(b.cfg.DumpPath)
	if err != nil {
		return err
	}
	src := gormstorage.New(gormstorage.Dependencies{DB: fileDB, Logger: b.log})
	defer src.Close()

	snap, hasBoard, err := src.LoadBoard()
	if err != nil {
		return err
	}
	seqs, err := src.LoadSequences()
	if err != nil {
		return err
	}
	if hasBoard {
		if err := b.Backend.SaveBoard(snap); err != nil {
			return err
		}
	}
	for _, seq := range seqs {
		if err := b.Backend.SaveSequence(seq); err != nil {
			return err
		}
	}
	b.log.Info("restored from dump", "path", b.cfg.DumpPath, "board", hasBoard, "sequences", len(seqs))
	return nil
}

// dumpIfDirty writes the database to DumpPath when it changed since the
// last dump. A failed dump leaves it dirty.
func (b *Backend) dumpIfDirty() error {
	if b.cfg.DumpPath == "" || !b.dirty.Swap(false) {
		return nil
	}
	took, err := database.DumpToFile(b.db, b.cfg.DumpPath)
	if err != nil {
		b.dirty.Store(true)
		return err
	}
	b.dumps.Add(1)
	b.log.Debug("dumped to disk", "path", b.cfg.DumpPath, "duration", took)
	return nil
}

func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.dumpIfDirty(); err != nil {
				b.log.Error("error dumping to disk", "error", err)
			}
		}
	}
}
