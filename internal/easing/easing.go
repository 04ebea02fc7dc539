// Package easing implements the motion curves used by playback.
// The formulas are user-visible and must stay exactly as written.
package easing

import (
	"math"

	"github.com/tactiboard/engine/pkg/core"
)

// Func maps progress in [0,1] to eased progress in [0,1].
type Func func(t float64) float64

// Linear returns t unchanged.
func Linear(t float64) float64 {
	return t
}

// EaseOut decelerates: 1 - (1-t)^2.
func EaseOut(t float64) float64 {
	return 1 - (1-t)*(1-t)
}

// EaseInOut is cubic: 4t^3 below the midpoint, 1 - (-2t+2)^3/2 above it.
func EaseInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// For returns the curve for a named easing. Unknown or empty names fall back
// to Linear so a hand-edited sequence still plays.
func For(e core.Easing) Func {
	switch e {
	case core.EasingEaseOut:
		return EaseOut
	case core.EasingEaseInOut:
		return EaseInOut
	default:
		return Linear
	}
}

// Apply clamps t into [0,1] and evaluates the named curve.
func Apply(e core.Easing, t float64) float64 {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return For(e)(t)
}
