// Package geo holds the field-coordinate math shared by the recorder,
// compiler and playback engine.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tactiboard/engine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// FIELD COORDINATES
// Board state is kept in field units (ViewSettings.FieldWidth x FieldHeight).
// Animation steps are kept in the unit square so playback does not depend on
// the resolution the sequence was recorded at.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PointFromString parses a string in the format "x,y" into a core.Point.
func PointFromString(coords string) (core.Point, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Point{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Point{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Point{}, ErrInvalidCoordinates
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return core.Point{}, ErrInvalidCoordinates
	}
	return core.Point{X: x, Y: y}, nil
}

func toGeom(p core.Point) geom.Geometry {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Type: geom.DimXY,
		},
	).AsGeometry()
}

// Displacement returns the straight-line distance between two points.
func Displacement(a, b core.Point) float64 {
	d, ok := geom.Distance(toGeom(a), toGeom(b))
	if !ok {
		return 0
	}
	return d
}

// Normalize maps a field position into the unit square.
// A degenerate field (zero width or height) leaves that axis untouched.
func Normalize(p core.Point, view core.ViewSettings) core.Point {
	out := p
	if view.FieldWidth > 0 {
		out.X = p.X / view.FieldWidth
	}
	if view.FieldHeight > 0 {
		out.Y = p.Y / view.FieldHeight
	}
	return out
}

// Denormalize maps a unit-square position back to field coordinates.
func Denormalize(p core.Point, view core.ViewSettings) core.Point {
	out := p
	if view.FieldWidth > 0 {
		out.X = p.X * view.FieldWidth
	}
	if view.FieldHeight > 0 {
		out.Y = p.Y * view.FieldHeight
	}
	return out
}

// Lerp interpolates linearly between a and b.
func Lerp(a, b core.Point, t float64) core.Point {
	return core.Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
