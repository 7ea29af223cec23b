package geometry

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml/v2"
)

// EncodeKML writes the geometry as a KML document with a single placemark,
// for inspection in Google Earth and similar tools.
func EncodeKML(g *Geometry, name string, w io.Writer) error {
	if g == nil {
		return fmt.Errorf("cannot encode nil geometry")
	}

	polygons := g.MultiPolygon()
	elements := make([]kml.Element, 0, len(polygons))
	for _, p := range polygons {
		elements = append(elements, polygonElement(p))
	}

	var shape kml.Element
	if len(elements) == 1 {
		shape = elements[0]
	} else {
		shape = kml.MultiGeometry(elements...)
	}

	doc := kml.KML(
		kml.Document(
			kml.Name(name),
			kml.Placemark(
				kml.Name(name),
				shape,
			),
		),
	)

	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func polygonElement(p orb.Polygon) kml.Element {
	children := make([]kml.Element, 0, len(p))
	for i, ring := range p {
		lr := kml.LinearRing(kml.Coordinates(ringCoordinates(ring)...))
		if i == 0 {
			children = append(children, kml.OuterBoundaryIs(lr))
		} else {
			children = append(children, kml.InnerBoundaryIs(lr))
		}
	}
	return kml.Polygon(children...)
}

func ringCoordinates(ring orb.Ring) []kml.Coordinate {
	coords := make([]kml.Coordinate, 0, len(ring))
	for _, pt := range ring {
		coords = append(coords, kml.Coordinate{Lon: pt[0], Lat: pt[1]})
	}
	return coords
}
