package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/pkg/core"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"BoardRecord", &BoardRecord{}, "boards"},
		{"SequenceRecord", &SequenceRecord{}, "sequences"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels(t *testing.T) {
	assert.Len(t, DatabaseModels, 2)
}

func TestBoardRecord_RoundTrip(t *testing.T) {
	snap := core.Snapshot{
		Tokens: []core.Token{
			{ID: "h1", Team: core.TeamHome, Number: 1, Kind: core.TokenPlayer, Position: core.Point{X: 5, Y: 34}},
			{ID: "ball", Team: core.TeamNeutral, Kind: core.TokenBall, Position: core.Point{X: 52.5, Y: 34}},
		},
		View: core.ViewSettings{FieldWidth: 105, FieldHeight: 68, ShowGrid: true},
	}

	rec, err := NewBoardRecord(CurrentBoard, snap)
	require.NoError(t, err)
	assert.Equal(t, "current", rec.Name)
	assert.Equal(t, 2, rec.Tokens)

	got, err := rec.ToSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestSequenceRecord_ListingColumns(t *testing.T) {
	from, to := core.Point{X: 0, Y: 0}, core.Point{X: 1, Y: 1}
	seq := core.AnimationSequence{
		ID:            "s1",
		Title:         "press",
		TotalDuration: 3000,
		Loop:          true,
		Steps:         core.Steps{core.MoveStep{Timing: core.Timing{Duration: 3000}, TokenID: "h1", From: &from, To: &to, Easing: core.EasingLinear}},
	}

	rec, err := NewSequenceRecord(seq)
	require.NoError(t, err)
	assert.Equal(t, "press", rec.Title)
	assert.Equal(t, 1, rec.StepCount)
	assert.True(t, rec.Loop)

	got, err := rec.ToSequence()
	require.NoError(t, err)
	assert.Equal(t, seq, got)
}

func TestNewSequenceRecord_RequiresID(t *testing.T) {
	_, err := NewSequenceRecord(core.AnimationSequence{Title: "anonymous"})
	assert.Error(t, err)
}

func TestSequenceRecord_CorruptData(t *testing.T) {
	_, err := SequenceRecord{ID: "x", Data: []byte(`{"steps":[{"type":"teleport"}]}`)}.ToSequence()
	assert.Error(t, err)
}
