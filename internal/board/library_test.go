package board

import (
	"testing"

	"github.com/tactiboard/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibrary_AddAssignsID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddSequence(core.AnimationSequence{Title: "Overlap"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	seq, ok := s.Sequence(id)
	require.True(t, ok)
	assert.Equal(t, "Overlap", seq.Title)
}

func TestLibrary_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSequence(core.AnimationSequence{ID: "a"})
	require.NoError(t, err)
	_, err = s.AddSequence(core.AnimationSequence{ID: "a"})
	require.ErrorIs(t, err, ErrDuplicateSequence)
}

func TestLibrary_ReplaceSwapsIDs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSequence(core.AnimationSequence{ID: "old", Title: "v1"})
	require.NoError(t, err)

	newID, err := s.ReplaceSequence("old", core.AnimationSequence{ID: "old", Title: "v2"})
	require.NoError(t, err)
	assert.NotEqual(t, "old", newID)

	_, ok := s.Sequence("old")
	assert.False(t, ok)
	seq, ok := s.Sequence(newID)
	require.True(t, ok)
	assert.Equal(t, "v2", seq.Title)
	assert.Len(t, s.Sequences(), 1)

	_, err = s.ReplaceSequence("old", core.AnimationSequence{})
	require.ErrorIs(t, err, ErrUnknownSequence)
}

func TestLibrary_Delete(t *testing.T) {
	s := newTestStore(t)
	s.LoadLibrary([]core.AnimationSequence{{ID: "a"}, {ID: "b"}})
	require.NoError(t, s.DeleteSequence("a"))
	require.ErrorIs(t, s.DeleteSequence("a"), ErrUnknownSequence)

	seqs := s.Sequences()
	require.Len(t, seqs, 1)
	assert.Equal(t, "b", seqs[0].ID)
}
