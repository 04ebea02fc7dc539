package board

import (
	"fmt"
	"testing"

	"github.com/tactiboard/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() core.Snapshot {
	return core.Snapshot{
		Tokens: []core.Token{
			{ID: "h1", Team: core.TeamHome, Number: 1, Kind: core.TokenPlayer, Position: core.Point{X: 10, Y: 10}},
			{ID: "ball", Team: core.TeamNeutral, Kind: core.TokenBall, Position: core.Point{X: 50, Y: 34}},
		},
		View: core.ViewSettings{FieldWidth: 105, FieldHeight: 68},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testSnapshot(), Config{})
}

func TestApply_CheckpointsEveryMutation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Apply(MoveToken{ID: "h1", To: core.Point{X: 20, Y: 20}}))
	require.NoError(t, s.Apply(AddConnector{Connector: core.Connector{ID: "c1", Points: []core.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}}))

	assert.Equal(t, 3, s.HistoryLen())
	assert.Equal(t, 2, s.HistoryCursor())
	pos := s.Positions()
	assert.Equal(t, core.Point{X: 20, Y: 20}, pos["h1"])
}

func TestApply_RejectedMutationDoesNotCheckpoint(t *testing.T) {
	s := newTestStore(t)

	err := s.Apply(MoveToken{ID: "missing", To: core.Point{}})
	require.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, 1, s.HistoryLen())
}

func TestUndoRedo(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(MoveToken{ID: "h1", To: core.Point{X: 30, Y: 30}}))

	require.True(t, s.Undo())
	assert.Equal(t, core.Point{X: 10, Y: 10}, s.Positions()["h1"])
	assert.False(t, s.Undo(), "undo at cursor 0 is a no-op")

	require.True(t, s.Redo())
	assert.Equal(t, core.Point{X: 30, Y: 30}, s.Positions()["h1"])
	assert.False(t, s.Redo(), "redo at last entry is a no-op")
}

func TestUndo_After51Mutations(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 51; i++ {
		require.NoError(t, s.Apply(MoveToken{ID: "h1", To: core.Point{X: float64(i), Y: 0}}))
	}
	assert.Equal(t, 50, s.HistoryLen())

	reached := map[float64]bool{}
	for s.Undo() {
		reached[s.Positions()["h1"].X] = true
	}
	assert.False(t, reached[1], "first mutation's snapshot must be evicted")
	assert.True(t, reached[2])
	assert.Equal(t, 0, s.HistoryCursor())
}

func TestWriteFrame_DoesNotTouchHistory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(MoveToken{ID: "h1", To: core.Point{X: 12, Y: 12}}))
	before := s.HistoryLen()

	s.WriteFrame(Frame{
		Positions: map[string]core.Point{"h1": {X: 99, Y: 1}, "ghost": {X: 1, Y: 1}},
		Reveals: &Reveals{
			Connectors: []core.Connector{{ID: "c1"}},
			Overlay:    []byte{1, 2},
		},
	})

	assert.Equal(t, before, s.HistoryLen())
	assert.Equal(t, core.Point{X: 99, Y: 1}, s.Positions()["h1"])
	assert.Len(t, s.Reveals().Connectors, 1)

	// undo restores the checkpoint, not the playback write
	require.True(t, s.Undo())
	assert.Equal(t, core.Point{X: 10, Y: 10}, s.Positions()["h1"])

	s.ClearOverlay()
	assert.Nil(t, s.Reveals().Overlay)
	assert.Len(t, s.Reveals().Connectors, 1)
}

func TestWriteFrame_NilRevealsKeepsVisibleSet(t *testing.T) {
	s := newTestStore(t)
	s.WriteFrame(Frame{Reveals: &Reveals{Paths: []core.FreehandPath{{ID: "p1"}}}})
	s.WriteFrame(Frame{Positions: map[string]core.Point{"h1": {X: 1, Y: 1}}})
	assert.Len(t, s.Reveals().Paths, 1)
}

func TestAddToken_TeamLimits(t *testing.T) {
	s := New(core.Snapshot{}, Config{})
	for i := 1; i <= core.MaxPlayersPerTeam; i++ {
		require.NoError(t, s.Apply(AddToken{Token: core.Token{ID: fmt.Sprintf("h%d", i), Team: core.TeamHome, Number: i}}))
	}
	err := s.Apply(AddToken{Token: core.Token{ID: "h12", Team: core.TeamHome, Number: 12}})
	require.ErrorIs(t, err, ErrTeamFull)

	// other team and non-player tokens are unaffected
	require.NoError(t, s.Apply(AddToken{Token: core.Token{ID: "a1", Team: core.TeamAway, Number: 1}}))
	require.NoError(t, s.Apply(AddToken{Token: core.Token{ID: "cone", Team: core.TeamHome, Kind: core.TokenCone}}))
}

func TestAddToken_DuplicateNumberAndID(t *testing.T) {
	s := newTestStore(t)
	err := s.Apply(AddToken{Token: core.Token{ID: "h9", Team: core.TeamHome, Number: 1, Kind: core.TokenPlayer}})
	require.ErrorIs(t, err, ErrDuplicateNumber)

	err = s.Apply(AddToken{Token: core.Token{ID: "h1", Team: core.TeamAway, Number: 5}})
	require.ErrorIs(t, err, ErrDuplicateToken)

	err = s.Apply(AddToken{Token: core.Token{Team: core.TeamAway, Number: 5}})
	require.ErrorIs(t, err, ErrInvalidMutation)
}

func TestApplyFormation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(ApplyFormation{Team: core.TeamHome, Slots: map[int]core.Point{1: {X: 5, Y: 34}, 9: {X: 80, Y: 34}}}))
	assert.Equal(t, core.Point{X: 5, Y: 34}, s.Positions()["h1"])
	assert.Equal(t, core.Point{X: 50, Y: 34}, s.Positions()["ball"])
}

func TestDrawings(t *testing.T) {
	s := newTestStore(t)
	pts := []core.Point{{X: 0, Y: 0}, {X: 5, Y: 5}}

	require.NoError(t, s.Apply(AddConnector{Connector: core.Connector{ID: "c1", Points: pts, Style: core.StyleDashed, Type: core.LinePass}}))
	require.ErrorIs(t, s.Apply(AddConnector{Connector: core.Connector{ID: "c1", Points: pts}}), ErrInvalidMutation)
	require.NoError(t, s.Apply(AddPath{Path: core.FreehandPath{ID: "p1", Points: pts}}))
	require.ErrorIs(t, s.Apply(AddPath{Path: core.FreehandPath{ID: "p2", Points: pts[:1]}}), ErrInvalidMutation)

	require.NoError(t, s.Apply(DeleteConnector{ID: "c1"}))
	require.ErrorIs(t, s.Apply(DeleteConnector{ID: "c1"}), ErrUnknownConnector)
	require.ErrorIs(t, s.Apply(DeletePath{ID: "nope"}), ErrUnknownPath)

	require.NoError(t, s.Apply(ClearDrawings{}))
	snap := s.Snapshot()
	assert.Empty(t, snap.Connectors)
	assert.Empty(t, snap.Paths)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()
	snap.Tokens[0].Position = core.Point{X: -1, Y: -1}
	assert.Equal(t, core.Point{X: 10, Y: 10}, s.Positions()["h1"])
}

func TestLoad_ResetsHistory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Apply(RemoveToken{ID: "ball"}))
	s.Load(testSnapshot())
	assert.Equal(t, 1, s.HistoryLen())
	assert.Len(t, s.Snapshot().Tokens, 2)
}
