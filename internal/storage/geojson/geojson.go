// Package geojson encodes category payloads as GeoJSON feature collections.
//
// A document carries the category metadata in a top-level "category" member
// next to the standard "features" array. Bookmarks are Point features, tracks
// are LineString features; the "kind" property tells them apart.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OCAP2/bookmarks/internal/geo"
	"github.com/OCAP2/bookmarks/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrFormat is returned when the input is not a valid category document.
var ErrFormat = errors.New("invalid bookmark file format")

const (
	kindBookmark = "bookmark"
	kindTrack    = "track"

	typeFeatureCollection = "FeatureCollection"
)

type document struct {
	Type     string                `json:"type"`
	Category categoryJSON          `json:"category"`
	Features []geom.GeoJSONFeature `json:"features"`
}

type categoryJSON struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Visible     *bool             `json:"visible,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Encode writes data as an indented GeoJSON document.
func Encode(w io.Writer, data *core.FileData) error {
	visible := data.Category.Visible
	doc := document{
		Type: typeFeatureCollection,
		Category: categoryJSON{
			Name:        data.Category.Name,
			Description: data.Category.Description,
			Visible:     &visible,
			Properties:  data.Category.Properties,
		},
		Features: make([]geom.GeoJSONFeature, 0, len(data.Bookmarks)+len(data.Tracks)),
	}

	for _, bm := range data.Bookmarks {
		props := map[string]any{
			"kind":  kindBookmark,
			"name":  bm.Name,
			"color": bm.Color.String(),
		}
		if bm.Description != "" {
			props["description"] = bm.Description
		}
		if bm.Icon != "" {
			props["icon"] = bm.Icon
		}
		if bm.Scale != 0 {
			props["scale"] = bm.Scale
		}
		if !bm.Timestamp.IsZero() {
			props["timestamp"] = bm.Timestamp.UTC().Format(time.RFC3339)
		}
		if len(bm.Properties) > 0 {
			props["properties"] = bm.Properties
		}
		doc.Features = append(doc.Features, geom.GeoJSONFeature{
			Geometry:   geo.Point(bm.Position).AsGeometry(),
			Properties: props,
		})
	}

	for _, tr := range data.Tracks {
		props := map[string]any{
			"kind":  kindTrack,
			"name":  tr.Name,
			"color": tr.Color.String(),
		}
		if tr.Description != "" {
			props["description"] = tr.Description
		}
		if tr.Width != 0 {
			props["width"] = tr.Width
		}
		if !tr.Timestamp.IsZero() {
			props["timestamp"] = tr.Timestamp.UTC().Format(time.RFC3339)
		}
		doc.Features = append(doc.Features, geom.GeoJSONFeature{
			Geometry:   geo.LineString(tr.Points).AsGeometry(),
			Properties: props,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode parses a GeoJSON document. Any structural problem wraps ErrFormat.
func Decode(r io.Reader) (*core.FileData, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Type != typeFeatureCollection {
		return nil, fmt.Errorf("%w: unexpected document type %q", ErrFormat, doc.Type)
	}

	data := &core.FileData{
		Category: core.CategoryData{
			Name:        doc.Category.Name,
			Description: doc.Category.Description,
			Visible:     doc.Category.Visible == nil || *doc.Category.Visible,
			Properties:  doc.Category.Properties,
		},
	}

	for i, f := range doc.Features {
		kind, _ := f.Properties["kind"].(string)
		switch f.Geometry.Type() {
		case geom.TypePoint:
			if kind != "" && kind != kindBookmark {
				return nil, fmt.Errorf("%w: feature %d: point with kind %q", ErrFormat, i, kind)
			}
			bm, err := decodeBookmark(f)
			if err != nil {
				return nil, fmt.Errorf("%w: feature %d: %v", ErrFormat, i, err)
			}
			data.Bookmarks = append(data.Bookmarks, bm)
		case geom.TypeLineString:
			if kind != "" && kind != kindTrack {
				return nil, fmt.Errorf("%w: feature %d: line with kind %q", ErrFormat, i, kind)
			}
			tr, err := decodeTrack(f)
			if err != nil {
				return nil, fmt.Errorf("%w: feature %d: %v", ErrFormat, i, err)
			}
			data.Tracks = append(data.Tracks, tr)
		default:
			return nil, fmt.Errorf("%w: feature %d: unsupported geometry %s", ErrFormat, i, f.Geometry.Type())
		}
	}
	return data, nil
}

func decodeBookmark(f geom.GeoJSONFeature) (core.BookmarkData, error) {
	seq := f.Geometry.DumpCoordinates()
	if seq.Length() != 1 {
		return core.BookmarkData{}, errors.New("empty point")
	}
	xy := seq.GetXY(0)
	bm := core.BookmarkData{
		Name:        stringProp(f.Properties, "name"),
		Description: stringProp(f.Properties, "description"),
		Color:       colorProp(f.Properties),
		Icon:        stringProp(f.Properties, "icon"),
		Scale:       uint8(numberProp(f.Properties, "scale")),
		Position:    geo.FromLonLat(xy.X, xy.Y),
	}
	ts, err := timeProp(f.Properties)
	if err != nil {
		return core.BookmarkData{}, err
	}
	bm.Timestamp = ts
	if raw, ok := f.Properties["properties"].(map[string]any); ok {
		bm.Properties = make(map[string]string, len(raw))
		for k, v := range raw {
			s, ok := v.(string)
			if !ok {
				return core.BookmarkData{}, fmt.Errorf("property %q is not a string", k)
			}
			bm.Properties[k] = s
		}
	}
	return bm, nil
}

func decodeTrack(f geom.GeoJSONFeature) (core.TrackData, error) {
	seq := f.Geometry.DumpCoordinates()
	if seq.Length() < 2 {
		return core.TrackData{}, errors.New("track needs at least 2 points")
	}
	points := make(core.Polyline, seq.Length())
	for i := range points {
		xy := seq.GetXY(i)
		points[i] = geo.FromLonLat(xy.X, xy.Y)
	}
	tr := core.TrackData{
		Name:        stringProp(f.Properties, "name"),
		Description: stringProp(f.Properties, "description"),
		Color:       colorProp(f.Properties),
		Width:       numberProp(f.Properties, "width"),
		Points:      points,
	}
	ts, err := timeProp(f.Properties)
	if err != nil {
		return core.TrackData{}, err
	}
	tr.Timestamp = ts
	return tr, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func numberProp(props map[string]any, key string) float64 {
	n, _ := props[key].(float64)
	return n
}

func colorProp(props map[string]any) core.Color {
	name, ok := props["color"].(string)
	if !ok {
		return core.DefaultColor
	}
	return core.ParseColor(name)
}

func timeProp(props map[string]any) (time.Time, error) {
	s, ok := props["timestamp"].(string)
	if !ok || s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return ts, nil
}
