package easing

import (
	"testing"

	"github.com/tactiboard/engine/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestEaseInOut_Boundaries(t *testing.T) {
	assert.Equal(t, 0.0, EaseInOut(0))
	assert.Equal(t, 1.0, EaseInOut(1))
	assert.Equal(t, 0.5, EaseInOut(0.5))
}

func TestEaseInOut_Branches(t *testing.T) {
	assert.InDelta(t, 4*0.25*0.25*0.25, EaseInOut(0.25), 1e-12)
	assert.InDelta(t, 1-0.125/2, EaseInOut(0.75), 1e-12)
}

func TestEaseOut(t *testing.T) {
	assert.Equal(t, 0.0, EaseOut(0))
	assert.Equal(t, 1.0, EaseOut(1))
	assert.InDelta(t, 0.75, EaseOut(0.5), 1e-12)
}

func TestLinear(t *testing.T) {
	for _, v := range []float64{0, 0.1, 0.5, 0.9, 1} {
		assert.Equal(t, v, Linear(v))
	}
}

func TestMonotonic(t *testing.T) {
	for _, f := range []Func{Linear, EaseOut, EaseInOut} {
		prev := f(0)
		for i := 1; i <= 100; i++ {
			cur := f(float64(i) / 100)
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
	}
}

func TestFor_UnknownFallsBackToLinear(t *testing.T) {
	assert.Equal(t, 0.3, For(core.Easing("bounce"))(0.3))
	assert.Equal(t, 0.3, For("")(0.3))
	assert.Equal(t, EaseInOut(0.3), For(core.EasingEaseInOut)(0.3))
}

func TestApply_Clamps(t *testing.T) {
	assert.Equal(t, 0.0, Apply(core.EasingEaseOut, -1))
	assert.Equal(t, 1.0, Apply(core.EasingEaseOut, 2))
}
