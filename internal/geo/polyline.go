package geo

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/bookmarks/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParsePolyline parses a JSON array of lon/lat pairs into a mercator polyline.
// Input format: "[[lon1,lat1],[lon2,lat2],...]"
func ParsePolyline(input string) (core.Polyline, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline must have at least 2 points, got %d", len(coords))
	}

	polyline := make(core.Polyline, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		polyline[i] = FromLonLat(coord[0], coord[1])
	}

	return polyline, nil
}

// LineString converts a mercator polyline to a lon/lat geometry.
func LineString(poly core.Polyline) geom.LineString {
	flatCoords := make([]float64, 0, len(poly)*2)
	for _, p := range poly {
		lon, lat := ToLonLat(p)
		flatCoords = append(flatCoords, lon, lat)
	}
	return geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
}

// PolylineFromLineString converts a lon/lat geometry back to mercator.
func PolylineFromLineString(ls geom.LineString) core.Polyline {
	seq := ls.Coordinates()
	n := seq.Length()
	poly := make(core.Polyline, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		poly[i] = FromLonLat(xy.X, xy.Y)
	}
	return poly
}
