package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tactiboard/engine/internal/api"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/database"
	"github.com/tactiboard/engine/internal/storage"
	gormstorage "github.com/tactiboard/engine/internal/storage/gorm"
	"github.com/tactiboard/engine/internal/storage/memory"

	"gorm.io/gorm"
)

// migrateBackups copies the board and sequences of every SQLite dump in dir
// into Postgres. Each dump is imported in its own transaction. Rows are
// upserted by key, so running it twice is harmless.
func migrateBackups(dir string) error {
	if dir == "" {
		dir = filepath.Dir(config.GetStorageConfig().SQLite.DumpPath)
	}
	sqlitePaths, err := database.BackupFiles(dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %v", err)
	}
	postgresDB, err := database.OpenPostgres(config.GetDBConfig(), DBLogger)
	if err != nil {
		return fmt.Errorf("error getting postgres database: %v", err)
	}
	if err := database.Migrate(postgresDB); err != nil {
		return err
	}

	successfulMigrations := make([]string, 0)
	for _, sqlitePath := range sqlitePaths {
		n, err := migrateBackup(sqlitePath, postgresDB)
		if err != nil {
			return fmt.Errorf("migrating %s: %w", sqlitePath, err)
		}
		Logger.Info("Migrated backup", "path", sqlitePath, "sequences", n)
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	Logger.Info("Successfully migrated backups",
		"count", len(successfulMigrations),
		"paths", successfulMigrations)
	return nil
}

func migrateBackup(sqlitePath string, postgresDB *gorm.DB) (int, error) {
	sqliteDB, err := database.OpenSQLite(sqlitePath)
	if err != nil {
		return 0, fmt.Errorf("error getting sqlite database: %v", err)
	}
	src := gormstorage.New(gormstorage.Dependencies{DB: sqliteDB, Logger: Logger})
	defer func() {
		if err := src.Close(); err != nil {
			Logger.Error("Error closing sqlite connection", "error", err)
		}
	}()

	snap, hasBoard, err := src.LoadBoard()
	if err != nil {
		return 0, err
	}
	seqs, err := src.LoadSequences()
	if err != nil {
		return 0, err
	}

	err = postgresDB.Transaction(func(tx *gorm.DB) error {
		dst := gormstorage.New(gormstorage.Dependencies{DB: tx, Logger: Logger})
		if hasBoard {
			if err := dst.SaveBoard(snap); err != nil {
				return err
			}
		}
		for _, seq := range seqs {
			if err := dst.SaveSequence(seq); err != nil {
				return err
			}
		}
		return nil
	})
	return len(seqs), err
}

// uploadLibrary exports the configured backend's library to a file and
// sends it to the archive server at api.serverUrl.
func uploadLibrary() error {
	storageCfg := config.GetStorageConfig()
	src, err := initStorage(storageCfg)
	if err != nil {
		return err
	}
	defer src.Close()

	snap, _, err := src.LoadBoard()
	if err != nil {
		return err
	}
	seqs, err := src.LoadSequences()
	if err != nil {
		return err
	}

	// memory backends already hold the export; everything else is written
	// to a scratch library file first
	out, ok := src.(*memory.Backend)
	if !ok {
		dir, err := os.MkdirTemp("", AppName+"-upload-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		out = memory.New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
		if err := out.Init(); err != nil {
			return err
		}
		if err := storage.SaveLibrary(out, snap, seqs); err != nil {
			return err
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}
	path := out.ExportedPath()

	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		return err
	}
	if err := client.Upload(path, api.UploadMetadata{
		Sequences:  len(seqs),
		Tokens:     len(snap.Tokens),
		ExportedAt: SessionStartTime,
		Tag:        apiCfg.Tag,
	}); err != nil {
		return err
	}
	Logger.Info("Library uploaded", "path", path, "server", apiCfg.ServerURL)
	return nil
}
