package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/pkg/core"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestOverlay_SizeFollowsField(t *testing.T) {
	data, err := Overlay(core.Snapshot{View: core.ViewSettings{FieldWidth: 105, FieldHeight: 68}}, Options{Width: 210})
	require.NoError(t, err)

	img := decode(t, data)
	assert.Equal(t, 210, img.Bounds().Dx())
	assert.Equal(t, 136, img.Bounds().Dy())
	assert.Zero(t, alphaAt(img, 100, 60), "empty board renders transparent")
}

func TestOverlay_DrawsConnector(t *testing.T) {
	snap := core.Snapshot{
		View: core.ViewSettings{FieldWidth: 100, FieldHeight: 50},
		Connectors: []core.Connector{
			{ID: "c1", Points: []core.Point{{X: 10, Y: 25}, {X: 90, Y: 25}}, Style: core.StyleSolid, Type: core.LinePass},
		},
	}
	data, err := Overlay(snap, Options{Width: 200})
	require.NoError(t, err)

	img := decode(t, data)
	assert.NotZero(t, alphaAt(img, 100, 50))
	assert.Zero(t, alphaAt(img, 100, 10))
}

func TestOverlay_TokensOptional(t *testing.T) {
	snap := core.Snapshot{
		View:   core.ViewSettings{FieldWidth: 100, FieldHeight: 100},
		Tokens: []core.Token{{ID: "h10", Team: core.TeamHome, Number: 10, Kind: core.TokenPlayer, Position: core.Point{X: 50, Y: 50}}},
	}

	without, err := Overlay(snap, Options{Width: 100})
	require.NoError(t, err)
	assert.Zero(t, alphaAt(decode(t, without), 50, 50))

	with, err := OverlayFunc(Options{Width: 100, WithTokens: true})(snap)
	require.NoError(t, err)
	assert.NotZero(t, alphaAt(decode(t, with), 49, 49))
}

func TestOverlay_InvalidField(t *testing.T) {
	_, err := Overlay(core.Snapshot{}, Options{})
	assert.Error(t, err)
}
