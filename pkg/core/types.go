// pkg/core/types.go
package core

import (
	"math"
	"strings"
)

// Position2D is a planar point in spherical mercator meters (EPSG:3857).
type Position2D struct {
	X float64 `json:"x"` // easting
	Y float64 `json:"y"` // northing
}

// DistanceTo returns the planar distance between two positions.
func (p Position2D) DistanceTo(o Position2D) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Polyline is an ordered list of positions.
type Polyline []Position2D

// Clone returns an independent copy.
func (p Polyline) Clone() Polyline {
	if p == nil {
		return nil
	}
	out := make(Polyline, len(p))
	copy(out, p)
	return out
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min Position2D `json:"min"`
	Max Position2D `json:"max"`
}

// RectAround returns a square of half-size r centered at p.
func RectAround(p Position2D, r float64) Rect {
	return Rect{
		Min: Position2D{X: p.X - r, Y: p.Y - r},
		Max: Position2D{X: p.X + r, Y: p.Y + r},
	}
}

// Contains reports whether p lies inside the rectangle, borders included.
func (r Rect) Contains(p Position2D) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Center returns the rectangle center.
func (r Rect) Center() Position2D {
	return Position2D{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Color is one of the predefined bookmark colors.
type Color uint8

const (
	ColorNone Color = iota
	ColorRed
	ColorPink
	ColorPurple
	ColorDeepPurple
	ColorBlue
	ColorLightBlue
	ColorCyan
	ColorTeal
	ColorGreen
	ColorLime
	ColorYellow
	ColorOrange
	ColorDeepOrange
	ColorBrown
	ColorGray
	ColorBlueGray
)

// DefaultColor is used until the user picks another one.
const DefaultColor = ColorRed

var colorNames = []string{
	"none", "red", "pink", "purple", "deep_purple", "blue", "light_blue", "cyan",
	"teal", "green", "lime", "yellow", "orange", "deep_orange", "brown", "gray", "blue_gray",
}

func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "none"
}

// ParseColor maps a color name back to a Color. Unknown names yield ColorNone.
func ParseColor(s string) Color {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range colorNames {
		if name == s {
			return Color(i)
		}
	}
	return ColorNone
}
