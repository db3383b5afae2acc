package route

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadGeoJSON reads a route and its stops from a FeatureCollection file.
// See ParseGeoJSON for the expected layout.
func LoadGeoJSON(path string) (Route, []Stop, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read route file: %w", err)
	}
	return ParseGeoJSON(b)
}

// ParseGeoJSON expects exactly one LineString feature (the route) and any
// number of Point features (the stops, in file order). A stop takes its name
// from the "name" property and its ID from the feature id or the "id" property.
func ParseGeoJSON(b []byte) (Route, []Stop, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, nil, fmt.Errorf("parse geojson: %w", err)
	}

	var r Route
	var stops []Stop
	lines := 0
	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			lines++
			r = Route(append([]orb.Point(nil), g...))
		case orb.Point:
			s := Stop{
				ID:       featureID(f),
				Name:     f.Properties.MustString("name", ""),
				Location: g,
			}
			if s.Name == "" {
				s.Name = fmt.Sprintf("stop %d", len(stops)+1)
			}
			stops = append(stops, s)
		default:
			return nil, nil, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry)
		}
	}
	if lines != 1 {
		return nil, nil, fmt.Errorf("expected 1 LineString feature, got %d", lines)
	}
	return r, stops, nil
}

func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%g", id)
	}
	return f.Properties.MustString("id", "")
}
