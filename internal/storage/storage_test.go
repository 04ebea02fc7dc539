package storage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/internal/storage"
	"github.com/tactiboard/engine/pkg/core"
)

type recordingBackend struct {
	board     *core.Snapshot
	sequences []string
	failOn    string
}

func (b *recordingBackend) Init() error  { return nil }
func (b *recordingBackend) Close() error { return nil }
func (b *recordingBackend) SaveBoard(snap core.Snapshot) error {
	b.board = &snap
	return nil
}
func (b *recordingBackend) LoadBoard() (core.Snapshot, bool, error) {
	if b.board == nil {
		return core.Snapshot{}, false, nil
	}
	return *b.board, true, nil
}
func (b *recordingBackend) SaveSequence(seq core.AnimationSequence) error {
	if seq.ID == b.failOn {
		return errors.New("disk full")
	}
	b.sequences = append(b.sequences, seq.ID)
	return nil
}
func (b *recordingBackend) DeleteSequence(id string) error { return nil }
func (b *recordingBackend) LoadSequences() ([]core.AnimationSequence, error) {
	return nil, nil
}

var _ storage.Backend = (*recordingBackend)(nil)

func TestSaveLibrary(t *testing.T) {
	b := &recordingBackend{}
	snap := core.Snapshot{View: core.ViewSettings{FieldWidth: 105, FieldHeight: 68}}

	err := storage.SaveLibrary(b, snap, []core.AnimationSequence{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	got, ok, err := b.LoadBoard()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 105.0, got.View.FieldWidth)
	assert.Equal(t, []string{"a", "b"}, b.sequences)
}

func TestSaveLibrary_StopsAtFirstError(t *testing.T) {
	b := &recordingBackend{failOn: "a"}

	err := storage.SaveLibrary(b, core.Snapshot{}, []core.AnimationSequence{{ID: "a"}, {ID: "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving sequence a")
	assert.Empty(t, b.sequences)
}
