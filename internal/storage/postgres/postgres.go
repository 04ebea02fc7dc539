// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with an internal write queue and a background DB writer goroutine.
package postgres

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/database"
	"github.com/tactiboard/engine/internal/queue"
	gormstorage "github.com/tactiboard/engine/internal/storage/gorm"
	"github.com/tactiboard/engine/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued writes are committed.
const DefaultFlushInterval = time.Second

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	DB            *gorm.DB // optional; connected from DBConfig when nil
	DBConfig      config.DBConfig
	FlushInterval time.Duration
	Logger        *slog.Logger
	DBLogger      zerolog.Logger
}

// write is one queued save. Exactly one field is set.
type write struct {
	board *core.Snapshot
	seq   *core.AnimationSequence
}

// key coalesces queued writes: only the newest board and the newest version
// of each sequence are committed.
func (w write) key() string {
	if w.board != nil {
		return "board"
	}
	return "seq:" + w.seq.ID
}

// Backend implements storage.Backend with queue-based batch writes.
// Reads and deletes flush pending writes first.
type Backend struct {
	deps   Dependencies
	store  *gormstorage.Backend
	writes *queue.Queue[write]
	log    *slog.Logger

	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		writes: queue.New(write.key),
		log:    log,
	}
}

// Init connects when no DB was injected, runs schema migration, and starts
// the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		m := database.NewManager(b.deps.DBLogger)
		if err := m.Connect(b.deps.DBConfig); err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if m.Local {
			b.log.Warn("postgres unreachable, library is kept in a local in-memory database")
		}
		b.deps.DB = m.DB
	}

	b.store = gormstorage.New(gormstorage.Dependencies{DB: b.deps.DB, Logger: b.log})
	if err := b.store.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writer()
	return nil
}

// Close stops the writer, commits what is still queued and closes the connection.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	b.wg.Wait()
	flushErr := b.Flush()
	if err := b.store.Close(); err != nil {
		return err
	}
	return flushErr
}

// Pending returns the number of queued writes.
func (b *Backend) Pending() int {
	return b.writes.Len()
}

// SaveBoard queues the snapshot.
func (b *Backend) SaveBoard(snap core.Snapshot) error {
	c := snap.Clone()
	b.writes.Push(write{board: &c})
	return nil
}

// SaveSequence queues the sequence.
func (b *Backend) SaveSequence(seq core.AnimationSequence) error {
	if seq.ID == "" {
		return fmt.Errorf("save sequence: empty id")
	}
	b.writes.Push(write{seq: &seq})
	return nil
}

// DeleteSequence removes a stored sequence.
func (b *Backend) DeleteSequence(id string) error {
	if err := b.Flush(); err != nil {
		return err
	}
	return b.store.DeleteSequence(id)
}

// LoadBoard reads the stored board.
func (b *Backend) LoadBoard() (core.Snapshot, bool, error) {
	if err := b.Flush(); err != nil {
		return core.Snapshot{}, false, err
	}
	return b.store.LoadBoard()
}

// LoadSequences reads the stored sequences.
func (b *Backend) LoadSequences() ([]core.AnimationSequence, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	return b.store.LoadSequences()
}

// Flush commits every queued write in one transaction.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	return b.writes.Drain(func(items []write) error {
		start := time.Now()
		err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
			txStore := gormstorage.New(gormstorage.Dependencies{DB: tx, Logger: b.log})
			for _, w := range items {
				var err error
				switch {
				case w.board != nil:
					err = txStore.SaveBoard(*w.board)
				case w.seq != nil:
					err = txStore.SaveSequence(*w.seq)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("flush %d writes: %w", len(items), err)
		}
		b.log.Debug("writes committed", "count", len(items), "duration", time.Since(start))
		return nil
	})
}

// writer periodically drains the queue into the DB.
func (b *Backend) writer() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("DB writer failed, will retry", "error", err)
			}
		}
	}
}
