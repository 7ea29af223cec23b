package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarshalGeoJSON encodes the geometry as a GeoJSON geometry object. This is
// the persistence format for geometry slots and the renderer snapshot payload.
func MarshalGeoJSON(g *Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("cannot marshal nil geometry")
	}
	data, err := json.Marshal(geojson.NewGeometry(g.Orb()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	return data, nil
}

// UnmarshalGeoJSON decodes a GeoJSON Polygon or MultiPolygon. Any other
// geometry type is rejected.
func UnmarshalGeoJSON(data []byte) (*Geometry, error) {
	gj, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}

	switch geom := gj.Geometry().(type) {
	case orb.Polygon:
		return FromPolygon(geom), nil
	case orb.MultiPolygon:
		return FromMultiPolygon(geom), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", gj.Type)
	}
}
