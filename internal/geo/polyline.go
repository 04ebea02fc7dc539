package geo

import (
	"encoding/json"
	"fmt"

	"github.com/tactiboard/engine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParsePolyline parses a JSON array of coordinates into a list of points.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParsePolyline(input string) ([]core.Point, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline must have at least 2 points, got %d", len(coords))
	}

	points := make([]core.Point, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		points[i] = core.Point{X: coord[0], Y: coord[1]}
	}

	return points, nil
}

// LineString builds a geom.LineString from a point list.
func LineString(points []core.Point) geom.LineString {
	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.X, p.Y)
	}
	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq)
}

// PathLength returns the length of a polyline in field units.
// Fewer than two points have zero length.
func PathLength(points []core.Point) float64 {
	if len(points) < 2 {
		return 0
	}
	return LineString(points).Length()
}
