package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/internal/handlers"
	"github.com/tactiboard/engine/pkg/core"
)

func testView() handlers.BoardView {
	return handlers.BoardView{
		Board: core.Snapshot{
			Tokens: []core.Token{
				{ID: "h7", Team: core.TeamHome, Number: 7, Kind: core.TokenPlayer, Position: core.Point{X: 0, Y: 0}},
				{ID: "a10", Team: core.TeamAway, Number: 10, Kind: core.TokenPlayer, Position: core.Point{X: 50, Y: 100}},
				{ID: "ball", Team: core.TeamNeutral, Kind: core.TokenBall, Position: core.Point{X: 100, Y: 50}},
				{ID: "off", Team: core.TeamNeutral, Kind: core.TokenCone, Position: core.Point{X: 150, Y: 50}},
			},
			View: core.ViewSettings{FieldWidth: 100, FieldHeight: 100},
		},
		Connectors: []core.Connector{
			{ID: "c1", Type: core.LinePass, Points: []core.Point{{X: 0, Y: 50}, {X: 40, Y: 50}}},
		},
	}
}

func TestLayoutField(t *testing.T) {
	g := layoutField(testView(), 11, 11)
	rows := strings.Split(g.String(), "\n")
	require.Len(t, rows, 11)

	assert.Equal(t, '7', []rune(rows[0])[0])
	assert.Equal(t, "10", string([]rune(rows[10])[5:7]))
	assert.Equal(t, '●', []rune(rows[5])[10])

	// revealed pass from the left touchline to x=40
	for col := 0; col <= 4; col++ {
		assert.Equal(t, '·', []rune(rows[5])[col], "col %d", col)
		assert.Equal(t, cellPass, g.cells[5][col].kind)
	}
	assert.Equal(t, ' ', []rune(rows[5])[6])
}

func TestLayoutField_TokenOutsideFieldIgnored(t *testing.T) {
	g := layoutField(testView(), 11, 11)
	assert.NotContains(t, g.String(), "▲")
}

func TestLayoutField_Markings(t *testing.T) {
	view := testView()
	view.Board.View.ShowGrid = true
	view.Connectors = nil

	g := layoutField(view, 11, 11)
	rows := strings.Split(g.String(), "\n")
	assert.Equal(t, '│', []rune(rows[1])[5])
	assert.Equal(t, '┼', []rune(rows[5])[5])
}

func TestRenderField_MinimumSize(t *testing.T) {
	out := renderField(handlers.BoardView{}, 0, 0)
	assert.NotEmpty(t, out)
}
