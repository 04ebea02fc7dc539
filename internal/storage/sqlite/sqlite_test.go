package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/internal/database"
	"github.com/tactiboard/engine/internal/storage"
	"github.com/tactiboard/engine/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)
var _ storage.Exporter = (*Backend)(nil)

func TestBackend_CloseWritesFinalDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "library.db")
	b, err := New(Config{DumpPath: dumpPath}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.SaveSequence(core.AnimationSequence{ID: "s1", Title: "build-up", TotalDuration: 0}))
	require.NoError(t, b.Close())

	_, err = os.Stat(dumpPath)
	require.NoError(t, err)
	assert.Equal(t, dumpPath, b.ExportedPath())

	// the dump is a regular database holding the saved rows
	db, err := database.OpenSQLite(dumpPath)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Table("sequences").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.Close()
}

func TestBackend_PeriodicDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New(Config{DumpPath: dumpPath, DumpInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.SaveSequence(core.AnimationSequence{ID: "s1"}))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(dumpPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// nothing changed since, so no further dumps are written
	n := b.Dumps()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, b.Dumps())
}

func TestBackend_CleanCloseSkipsDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "untouched.db")
	b, err := New(Config{DumpPath: dumpPath}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	_, err = os.Stat(dumpPath)
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, b.Dumps())
}

func TestBackend_InstancesAreIsolated(t *testing.T) {
	a, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	defer a.Close()
	other, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, other.Init())
	defer other.Close()

	require.NoError(t, a.SaveSequence(core.AnimationSequence{ID: "only-in-a"}))
	seqs, err := other.LoadSequences()
	require.NoError(t, err)
	assert.Empty(t, seqs)
}

func TestBackend_InitRestoresDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "restore.db")
	b, err := New(Config{DumpPath: dumpPath}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveBoard(core.Snapshot{View: core.ViewSettings{FieldWidth: 105, FieldHeight: 68}}))
	require.NoError(t, b.SaveSequence(core.AnimationSequence{ID: "kept", Title: "press"}))
	require.NoError(t, b.Close())

	b2, err := New(Config{DumpPath: dumpPath}, nil)
	require.NoError(t, err)
	require.NoError(t, b2.Init())
	defer b2.Close()

	snap, ok, err := b2.LoadBoard()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 105.0, snap.View.FieldWidth)

	seqs, err := b2.LoadSequences()
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, "press", seqs[0].Title)
}
