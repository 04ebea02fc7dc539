package main

import (
	"fmt"

	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/pkg/core"
)

// lineup442 places shirt numbers on the home half as fractions of the
// field, attacking left to right.
var lineup442 = map[int]core.Point{
	1:  {X: 0.05, Y: 0.50},
	2:  {X: 0.20, Y: 0.85},
	3:  {X: 0.20, Y: 0.15},
	4:  {X: 0.18, Y: 0.62},
	5:  {X: 0.18, Y: 0.38},
	6:  {X: 0.32, Y: 0.40},
	7:  {X: 0.34, Y: 0.88},
	8:  {X: 0.32, Y: 0.60},
	9:  {X: 0.45, Y: 0.42},
	10: {X: 0.45, Y: 0.58},
	11: {X: 0.34, Y: 0.12},
}

// DefaultBoard is the board shown before anything has been saved: both
// sides in a 4-4-2 and the ball on the centre spot.
func DefaultBoard(cfg config.BoardConfig) core.Snapshot {
	w, h := cfg.FieldWidth, cfg.FieldHeight
	snap := core.Snapshot{
		View: core.ViewSettings{
			FieldWidth:  w,
			FieldHeight: h,
			ShowGrid:    true,
			Orientation: "horizontal",
		},
	}

	for n := 1; n <= core.MaxPlayersPerTeam; n++ {
		p := lineup442[n]
		snap.Tokens = append(snap.Tokens, core.Token{
			ID:       fmt.Sprintf("home-%d", n),
			Team:     core.TeamHome,
			Number:   n,
			Kind:     core.TokenPlayer,
			Position: core.Point{X: p.X * w, Y: p.Y * h},
			Size:     1,
		})
	}
	for n := 1; n <= core.MaxPlayersPerTeam; n++ {
		p := lineup442[n]
		// mirrored through the centre spot
		snap.Tokens = append(snap.Tokens, core.Token{
			ID:       fmt.Sprintf("away-%d", n),
			Team:     core.TeamAway,
			Number:   n,
			Kind:     core.TokenPlayer,
			Position: core.Point{X: (1 - p.X) * w, Y: (1 - p.Y) * h},
			Size:     1,
		})
	}
	snap.Tokens = append(snap.Tokens, core.Token{
		ID:       "ball",
		Team:     core.TeamNeutral,
		Kind:     core.TokenBall,
		Position: core.Point{X: w / 2, Y: h / 2},
		Size:     0.5,
	})
	return snap
}
