package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tactiboard/engine/internal/handlers"
	"github.com/tactiboard/engine/pkg/core"
)

// cell kinds, used to pick a style when the grid is drawn
const (
	cellEmpty = iota
	cellMarking
	cellPass
	cellMovement
	cellHome
	cellAway
	cellNeutral
)

var cellStyles = map[int]lipgloss.Style{
	cellEmpty:    lipgloss.NewStyle().Foreground(lipgloss.Color("22")),
	cellMarking:  lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
	cellPass:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	cellMovement: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	cellHome:     lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true),
	cellAway:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	cellNeutral:  lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
}

var fieldBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("28"))

type cell struct {
	r    rune
	kind int
}

// grid is the field rasterized to terminal cells.
type grid struct {
	cols, rows int
	w, h       float64
	cells      [][]cell
}

func newGrid(view core.ViewSettings, cols, rows int) *grid {
	g := &grid{cols: cols, rows: rows, w: view.FieldWidth, h: view.FieldHeight}
	if g.w <= 0 {
		g.w = 1
	}
	if g.h <= 0 {
		g.h = 1
	}
	g.cells = make([][]cell, rows)
	for y := range g.cells {
		g.cells[y] = make([]cell, cols)
		for x := range g.cells[y] {
			g.cells[y][x] = cell{r: ' ', kind: cellEmpty}
		}
	}
	return g
}

// at maps a field coordinate to a cell. ok is false outside the grid.
func (g *grid) at(p core.Point) (col, row int, ok bool) {
	col = int(math.Round(p.X / g.w * float64(g.cols-1)))
	row = int(math.Round(p.Y / g.h * float64(g.rows-1)))
	return col, row, col >= 0 && col < g.cols && row >= 0 && row < g.rows
}

func (g *grid) set(col, row int, r rune, kind int) {
	if col >= 0 && col < g.cols && row >= 0 && row < g.rows {
		g.cells[row][col] = cell{r: r, kind: kind}
	}
}

func (g *grid) markings() {
	mid := g.cols / 2
	for row := 0; row < g.rows; row++ {
		g.set(mid, row, '│', cellMarking)
	}
	if c, r, ok := g.at(core.Point{X: g.w / 2, Y: g.h / 2}); ok {
		g.set(c, r, '┼', cellMarking)
	}
}

// line plots a polyline with one dot per crossed cell.
func (g *grid) line(pts []core.Point, kind int) {
	for i := 1; i < len(pts); i++ {
		c0, r0, _ := g.at(pts[i-1])
		c1, r1, _ := g.at(pts[i])
		steps := max(abs(c1-c0), abs(r1-r0), 1)
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			c := c0 + int(math.Round(t*float64(c1-c0)))
			r := r0 + int(math.Round(t*float64(r1-r0)))
			g.set(c, r, '·', kind)
		}
	}
}

func (g *grid) token(t core.Token) {
	col, row, ok := g.at(t.Position)
	if !ok {
		return
	}
	kind := cellNeutral
	switch t.Team {
	case core.TeamHome:
		kind = cellHome
	case core.TeamAway:
		kind = cellAway
	}
	switch t.Kind {
	case core.TokenBall:
		g.set(col, row, '●', cellNeutral)
	case core.TokenCone:
		g.set(col, row, '▲', kind)
	case core.TokenMinigoal:
		g.set(col, row, '▯', kind)
	default:
		for i, r := range strconv.Itoa(t.Number) {
			g.set(col+i, row, r, kind)
		}
	}
}

func lineKind(t core.LineType) int {
	if t == core.LinePass {
		return cellPass
	}
	return cellMovement
}

// layoutField draws the board into a cols x rows grid: markings first,
// then drawn and revealed lines, then tokens on top.
func layoutField(view handlers.BoardView, cols, rows int) *grid {
	g := newGrid(view.Board.View, cols, rows)
	if view.Board.View.ShowGrid {
		g.markings()
	}
	for _, c := range view.Board.Connectors {
		g.line(c.Points, lineKind(c.Type))
	}
	for _, p := range view.Board.Paths {
		g.line(p.Points, lineKind(p.Type))
	}
	for _, c := range view.Connectors {
		g.line(c.Points, lineKind(c.Type))
	}
	for _, p := range view.Paths {
		g.line(p.Points, lineKind(p.Type))
	}
	for _, t := range view.Board.Tokens {
		g.token(t)
	}
	return g
}

// String returns the grid without styling.
func (g *grid) String() string {
	var b strings.Builder
	for i, row := range g.cells {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, c := range row {
			b.WriteRune(c.r)
		}
	}
	return b.String()
}

func renderField(view handlers.BoardView, cols, rows int) string {
	cols, rows = max(cols, 4), max(rows, 3)
	g := layoutField(view, cols, rows)

	lines := make([]string, len(g.cells))
	for i, row := range g.cells {
		var b strings.Builder
		for _, c := range row {
			b.WriteString(cellStyles[c.kind].Render(string(c.r)))
		}
		lines[i] = b.String()
	}
	return fieldBorder.Render(strings.Join(lines, "\n"))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
