package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/storage"
	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
	"github.com/tactiboard/engine/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)
var _ storage.Exporter = (*Backend)(nil)

func testSequence(id string) core.AnimationSequence {
	from, to := core.Point{X: 0.1, Y: 0.5}, core.Point{X: 0.4, Y: 0.5}
	return core.AnimationSequence{
		ID:            id,
		Title:         "switch play",
		TotalDuration: 3000,
		Steps: core.Steps{
			core.MoveStep{Timing: core.Timing{Duration: 3000}, TokenID: "h7", From: &from, To: &to, Easing: core.EasingEaseInOut},
			core.RevealPathStep{Timing: core.Timing{Duration: 3000}, Path: core.FreehandPath{ID: "p1", Points: []core.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}},
		},
	}
}

func testSnapshot() core.Snapshot {
	return core.Snapshot{
		Tokens: []core.Token{{ID: "h7", Team: core.TeamHome, Number: 7, Kind: core.TokenPlayer, Position: core.Point{X: 10, Y: 34}}},
		View:   core.ViewSettings{FieldWidth: 105, FieldHeight: 68},
	}
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{OutputDir: "/tmp/test", CompressOutput: true}
	b := New(cfg)

	assert.Equal(t, cfg, b.cfg)
	assert.Nil(t, b.board)
	assert.Empty(t, b.sequences)
}

func TestInit_EmptyDir(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	require.NoError(t, b.Init())

	_, ok, err := b.LoadBoard()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoadBoard(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	snap := testSnapshot()

	require.NoError(t, b.SaveBoard(snap))
	snap.Tokens[0].Position.X = 99

	got, ok, err := b.LoadBoard()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Tokens[0].Position.X, "stored copy is independent of the caller's")
}

func TestSaveSequence_ReplacesByID(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	require.NoError(t, b.SaveSequence(testSequence("a")))
	require.NoError(t, b.SaveSequence(testSequence("b")))
	updated := testSequence("a")
	updated.Title = "renamed"
	require.NoError(t, b.SaveSequence(updated))

	seqs, err := b.LoadSequences()
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, "renamed", seqs[0].Title)
	assert.Equal(t, "b", seqs[1].ID)
}

func TestSaveSequence_RequiresID(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.Error(t, b.SaveSequence(core.AnimationSequence{}))
}

func TestDeleteSequence(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.SaveSequence(testSequence("a")))

	require.NoError(t, b.DeleteSequence("a"))
	assert.ErrorIs(t, b.DeleteSequence("a"), storage.ErrNotFound)

	seqs, err := b.LoadSequences()
	require.NoError(t, err)
	assert.Empty(t, seqs)
}

func TestClose_WritesGzipExport(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	b.now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, b.SaveBoard(testSnapshot()))
	require.NoError(t, b.SaveSequence(testSequence("a")))

	require.NoError(t, b.Close())

	path := filepath.Join(dir, "library.json.gz")
	assert.Equal(t, path, b.ExportedPath())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var export v1.Export
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, v1.Version, export.Version)
	assert.Equal(t, "2024-03-02T10:00:00Z", export.ExportedAt)
	require.Len(t, export.Sequences, 1)
	assert.Equal(t, 1, export.Summary[0].Moves)
	_, isPath := export.Sequences[0].Steps[1].(core.RevealPathStep)
	assert.True(t, isPath)
}

func TestInit_RestoresPreviousExport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.MemoryConfig{OutputDir: dir}
	first := New(cfg)
	require.NoError(t, first.SaveBoard(testSnapshot()))
	require.NoError(t, first.SaveSequence(testSequence("a")))
	require.NoError(t, first.Close())

	second := New(cfg)
	require.NoError(t, second.Init())

	snap, ok, err := second.LoadBoard()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h7", snap.Tokens[0].ID)

	seqs, err := second.LoadSequences()
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, testSequence("a"), seqs[0])
}

func TestInit_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "library.json"), []byte(`{"version": 7}`), 0644))

	err := New(config.MemoryConfig{OutputDir: dir}).Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported library version")
}
