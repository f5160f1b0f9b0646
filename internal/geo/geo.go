package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/OCAP2/bookmarks/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions are held in spherical mercator (EPSG:3857) everywhere inside the
// module. Files and the command line speak longitude/latitude (EPSG:4326).

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var (
	toMercator = wgs84.EPSG().Transform(4326, 3857)
	toLonLat   = wgs84.EPSG().Transform(3857, 4326)
)

// FromLonLat projects a longitude/latitude pair to mercator.
func FromLonLat(lon, lat float64) core.Position2D {
	x, y, _ := toMercator(lon, lat, 0)
	return core.Position2D{X: x, Y: y}
}

// ToLonLat returns the longitude and latitude of a mercator position.
func ToLonLat(p core.Position2D) (lon, lat float64) {
	lon, lat, _ = toLonLat(p.X, p.Y, 0)
	return lon, lat
}

// PositionFromString parses "long,lat" or "long,lat,elev" into a mercator
// position. Elevation is accepted and dropped.
func PositionFromString(coords string) (core.Position2D, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	if len(coordsSplit) == 3 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[2]), 64); err != nil {
			return core.Position2D{}, ErrInvalidCoordinates
		}
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	return FromLonLat(lon, lat), nil
}

// Point converts a mercator position to a lon/lat geometry point.
func Point(p core.Position2D) geom.Point {
	lon, lat := ToLonLat(p)
	return geom.XY{X: lon, Y: lat}.AsPoint()
}

// PositionFromPoint converts a lon/lat geometry point back to mercator.
func PositionFromPoint(pt geom.Point) (core.Position2D, error) {
	xy, ok := pt.XY()
	if !ok {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	return FromLonLat(xy.X, xy.Y), nil
}
