// Package database opens the gorm connections used by the relational
// storage backends.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	memoryDSN     = "file::memory:?cache=shared"
	maxOpenConns  = 10
	slowStatement = 200 * time.Millisecond
)

var ErrNoDumpPath = errors.New("sqlite dump path not set")

// sqlitePragmas favour speed over durability; the file copy is written with
// DumpToFile.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
}

// Manager connects to postgres and falls back to an in-memory SQLite
// database when postgres cannot be reached.
type Manager struct {
	DB *gorm.DB
	// Local is set when the fallback database is in use.
	Local  bool
	Logger zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect opens postgres, pinging it once. On any failure it switches to
// the local fallback.
func (m *Manager) Connect(cfg config.DBConfig) error {
	db, err := OpenPostgres(cfg, m.Logger)
	if err == nil {
		err = ping(db)
	}
	if err != nil {
		m.Logger.Error().Err(err).Str("host", cfg.Host).Msg("Postgres unavailable, using local SQLite")
		return m.fallback()
	}

	m.DB = db
	m.Logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to database")
	return nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	return nil
}

func (m *Manager) fallback() error {
	db, err := OpenSQLite("")
	if err != nil {
		return fmt.Errorf("failed to open local SQLite DB: %w", err)
	}
	db.Logger = NewGormLogger(m.Logger)
	m.DB = db
	m.Local = true
	m.Logger.Info().Msg("Using local SQLite DB in memory")
	return nil
}

// Setup migrates the schema.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return errors.New("db not connected")
	}
	start := time.Now()
	if err := Migrate(m.DB); err != nil {
		return err
	}
	m.Logger.Info().Dur("took", time.Since(start)).Bool("local", m.Local).Msg("Database schema ready")
	return nil
}

// Migrate creates or updates the tables in model.DatabaseModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// BackupFiles returns the .db files in dir, sorted by name.
func BackupFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".db" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// PostgresDSN formats the connection string for cfg.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
}

// OpenPostgres opens a postgres connection whose statement log goes to log.
func OpenPostgres(cfg config.DBConfig, log zerolog.Logger) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 NewGormLogger(log),
	})
}

// OpenSQLite opens the SQLite file at path, or a shared in-memory database
// when path is empty. Statements are not logged.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return openSQLite(memoryDSN)
	}
	return openSQLite(path)
}

// OpenMemory opens the in-memory database called name. Connections using
// the same name within one process see the same data.
func OpenMemory(name string) (*gorm.DB, error) {
	return openSQLite("file:" + name + "?mode=memory&cache=shared")
}

func openSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}
	return db, nil
}

// DumpToFile writes db to a SQLite file at path with VACUUM INTO, replacing
// any file already there.
func DumpToFile(db *gorm.DB, path string) (time.Duration, error) {
	if path == "" {
		return 0, ErrNoDumpPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create dump directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove previous dump: %w", err)
	}

	start := time.Now()
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if err := db.Exec("VACUUM INTO " + quoted + ";").Error; err != nil {
		return 0, fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return time.Since(start), nil
}
