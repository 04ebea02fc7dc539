// Package gormstorage implements storage.Backend on top of a gorm connection.
// The sqlite and postgres backends embed it and only differ in how the
// connection is obtained.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tactiboard/engine/internal/database"
	"github.com/tactiboard/engine/internal/model"
	"github.com/tactiboard/engine/internal/storage"
	"github.com/tactiboard/engine/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies
	log  *slog.Logger
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{deps: deps, log: log}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.log.Debug("schema migrated", "dialect", b.deps.DB.Dialector.Name())
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// SaveBoard upserts the current board row.
func (b *Backend) SaveBoard(snap core.Snapshot) error {
	rec, err := model.NewBoardRecord(model.CurrentBoard, snap)
	if err != nil {
		return err
	}
	err = b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"snapshot", "tokens", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

// LoadBoard reads the current board row.
func (b *Backend) LoadBoard() (core.Snapshot, bool, error) {
	var rec model.BoardRecord
	err := b.deps.DB.Where("name = ?", model.CurrentBoard).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("load board: %w", err)
	}
	snap, err := rec.ToSnapshot()
	if err != nil {
		return core.Snapshot{}, false, err
	}
	return snap, true, nil
}

// SaveSequence upserts a sequence row. Creation order is preserved on update.
func (b *Backend) SaveSequence(seq core.AnimationSequence) error {
	rec, err := model.NewSequenceRecord(seq)
	if err != nil {
		return err
	}
	err = b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "total_duration", "step_count", "loop", "data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save sequence %s: %w", seq.ID, err)
	}
	return nil
}

// DeleteSequence removes a sequence row.
func (b *Backend) DeleteSequence(id string) error {
	res := b.deps.DB.Where("id = ?", id).Delete(&model.SequenceRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete sequence %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete sequence %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// LoadSequences returns all sequences in creation order. Rows that fail
// to decode are logged and skipped.
func (b *Backend) LoadSequences() ([]core.AnimationSequence, error) {
	var recs []model.SequenceRecord
	if err := b.deps.DB.Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}
	out := make([]core.AnimationSequence, 0, len(recs))
	for _, rec := range recs {
		seq, err := rec.ToSequence()
		if err != nil {
			b.log.Warn("skipping stored sequence", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, seq)
	}
	return out, nil
}
