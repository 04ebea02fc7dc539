package compiler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tactiboard/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var field = core.ViewSettings{FieldWidth: 100, FieldHeight: 50}

func phase(start, end map[string]core.Point) core.Phase {
	return core.Phase{StartPositions: start, EndPositions: end, Duration: 3000}
}

func TestCompile_ZeroDisplacementHasNoMoves(t *testing.T) {
	pos := map[string]core.Point{"a": {X: 1, Y: 1}, "b": {X: 40, Y: 20}}
	seq := Compile([]core.Phase{phase(pos, pos), phase(pos, pos)}, Options{Field: field})

	assert.Equal(t, 0, MoveCount(seq))
	assert.Equal(t, 6500.0, seq.TotalDuration)
}

func TestCompile_JitterIgnored(t *testing.T) {
	seq := Compile([]core.Phase{phase(
		map[string]core.Point{"a": {X: 10, Y: 10}, "b": {X: 10, Y: 10}},
		map[string]core.Point{"a": {X: 11, Y: 10}, "b": {X: 11.5, Y: 10}},
	)}, Options{Field: field})

	require.Equal(t, 1, MoveCount(seq))
	assert.Equal(t, "b", seq.Steps[0].(core.MoveStep).TokenID)
}

func TestCompile_TwoPhaseScenario(t *testing.T) {
	phases := []core.Phase{
		phase(map[string]core.Point{"a": {X: 0, Y: 0}}, map[string]core.Point{"a": {X: 10, Y: 0}}),
		phase(map[string]core.Point{"a": {X: 10, Y: 0}}, map[string]core.Point{"a": {X: 20, Y: 0}}),
	}
	seq := Compile(phases, Options{Field: field})

	assert.Equal(t, 6500.0, seq.TotalDuration)
	require.Len(t, seq.Steps, 2)

	first := seq.Steps[0].(core.MoveStep)
	assert.Equal(t, 0.0, first.Timestamp)
	assert.Equal(t, 3000.0, first.Duration)
	assert.Equal(t, core.EasingEaseInOut, first.Easing)
	assert.Equal(t, core.Point{X: 0, Y: 0}, *first.From)
	assert.Equal(t, core.Point{X: 0.1, Y: 0}, *first.To)

	second := seq.Steps[1].(core.MoveStep)
	assert.GreaterOrEqual(t, second.Timestamp, 3500.0)
}

func TestCompile_Reveals(t *testing.T) {
	p := phase(map[string]core.Point{}, map[string]core.Point{})
	p.Overlay = []byte{0x89, 'P', 'N', 'G'}
	p.ConnectorsAtStart = []core.Connector{{ID: "c1", Points: []core.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}}
	p.PathsAtStart = []core.FreehandPath{{ID: "p1"}}
	p.ConnectorsAtEnd = []core.Connector{{ID: "ignored"}}

	seq := Compile([]core.Phase{p}, Options{Field: field})
	require.Len(t, seq.Steps, 3)
	assert.Equal(t, core.StepRevealOverlay, seq.Steps[0].Kind())
	assert.Equal(t, core.StepRevealConnector, seq.Steps[1].Kind())
	assert.Equal(t, "c1", seq.Steps[1].(core.RevealConnectorStep).Connector.ID)
	assert.Equal(t, core.StepRevealPath, seq.Steps[2].Kind())
	for _, s := range seq.Steps {
		assert.Equal(t, 3000.0, s.Window().Duration)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	start := map[string]core.Point{}
	end := map[string]core.Point{}
	for _, id := range []string{"z", "a", "m", "q", "b", "k"} {
		start[id] = core.Point{X: 0, Y: 0}
		end[id] = core.Point{X: 30, Y: 10}
	}
	phases := []core.Phase{phase(start, end), phase(end, start)}

	first, err := json.Marshal(Compile(phases, Options{Field: field}))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Compile(phases, Options{Field: field}))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestCompile_NoPhases(t *testing.T) {
	seq := Compile(nil, Options{})
	assert.Equal(t, 0.0, seq.TotalDuration)
	assert.Empty(t, seq.Steps)
}

func TestCompile_MissingEndPositionSkipped(t *testing.T) {
	seq := Compile([]core.Phase{phase(
		map[string]core.Point{"gone": {X: 0, Y: 0}},
		map[string]core.Point{},
	)}, Options{Field: field})
	assert.Equal(t, 0, MoveCount(seq))
}

func TestCompile_CustomGap(t *testing.T) {
	pos := map[string]core.Point{}
	gap := 250 * time.Millisecond
	seq := Compile([]core.Phase{phase(pos, pos), phase(pos, pos), phase(pos, pos)},
		Options{Field: field, PhaseGap: &gap, Title: "drill"})
	assert.Equal(t, 9500.0, seq.TotalDuration)
	assert.Equal(t, "drill", seq.Title)
}

func TestCompile_ZeroGapAndThreshold(t *testing.T) {
	var (
		gap       time.Duration
		threshold float64
	)
	phases := []core.Phase{
		phase(map[string]core.Point{"a": {X: 10, Y: 10}}, map[string]core.Point{"a": {X: 10.5, Y: 10}}),
		phase(map[string]core.Point{"a": {X: 10.5, Y: 10}}, map[string]core.Point{"a": {X: 10.5, Y: 10}}),
	}

	seq := Compile(phases, Options{Field: field, PhaseGap: &gap, MinDisplacement: &threshold})
	assert.Equal(t, 6000.0, seq.TotalDuration)
	assert.Equal(t, 1, MoveCount(seq), "sub-unit moves animate, still tokens do not")

	seq = Compile(phases, Options{Field: field})
	assert.Equal(t, 6500.0, seq.TotalDuration)
	assert.Zero(t, MoveCount(seq))
}

func TestPhase_DurationIsMilliseconds(t *testing.T) {
	b, err := json.Marshal(core.Phase{Duration: 1500})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"duration":1500`)
}
