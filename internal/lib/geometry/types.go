// Package geometry owns the revealed-area polygon model and its boolean
// merge engine. Coordinates are treated as planar (lon, lat) throughout:
// the shapes being merged are sub-quarter-mile discs, where spherical
// distortion is negligible. This is an intentional simplification, not a
// rigorous geodesic union.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Kind discriminates the geometry variant.
type Kind int

const (
	// KindPolygon is a single outer ring with optional holes.
	KindPolygon Kind = iota
	// KindMultiPolygon is a set of disjoint polygons, each with optional holes.
	KindMultiPolygon
)

func (k Kind) String() string {
	if k == KindMultiPolygon {
		return "MultiPolygon"
	}
	return "Polygon"
}

// Geometry is a tagged polygon/multipolygon. Rings are always closed, outer
// rings wind counter-clockwise and holes clockwise; the constructors
// normalize their input so consumers can rely on it.
type Geometry struct {
	kind    Kind
	polygon orb.Polygon
	multi   orb.MultiPolygon
}

// MergeError reports a boolean operation that failed on degenerate or
// self-intersecting input. Callers log it and drop the offending mutation;
// previously committed geometry is never touched.
type MergeError struct {
	Op  string
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("geometry %s failed: %v", e.Op, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// FromRing builds a single-ring polygon geometry.
func FromRing(ring orb.Ring) *Geometry {
	return FromPolygon(orb.Polygon{ring})
}

// FromPolygon builds a polygon geometry, normalizing ring closure and winding.
func FromPolygon(p orb.Polygon) *Geometry {
	return &Geometry{kind: KindPolygon, polygon: normalizePolygon(p)}
}

// FromMultiPolygon builds a multipolygon geometry, normalizing every ring.
// A single-element multipolygon collapses to the polygon variant.
func FromMultiPolygon(mp orb.MultiPolygon) *Geometry {
	if len(mp) == 1 {
		return FromPolygon(mp[0])
	}
	normalized := make(orb.MultiPolygon, len(mp))
	for i, p := range mp {
		normalized[i] = normalizePolygon(p)
	}
	return &Geometry{kind: KindMultiPolygon, multi: normalized}
}

// Kind returns the variant tag.
func (g *Geometry) Kind() Kind { return g.kind }

// Orb returns the underlying orb geometry for encoding.
func (g *Geometry) Orb() orb.Geometry {
	switch g.kind {
	case KindPolygon:
		return g.polygon
	case KindMultiPolygon:
		return g.multi
	default:
		panic(fmt.Sprintf("unknown geometry kind %d", g.kind))
	}
}

// MultiPolygon returns a multipolygon view regardless of variant.
func (g *Geometry) MultiPolygon() orb.MultiPolygon {
	switch g.kind {
	case KindPolygon:
		return orb.MultiPolygon{g.polygon}
	case KindMultiPolygon:
		return g.multi
	default:
		panic(fmt.Sprintf("unknown geometry kind %d", g.kind))
	}
}

// Clone returns a deep copy.
func (g *Geometry) Clone() *Geometry {
	switch g.kind {
	case KindPolygon:
		return &Geometry{kind: KindPolygon, polygon: g.polygon.Clone()}
	case KindMultiPolygon:
		return &Geometry{kind: KindMultiPolygon, multi: g.multi.Clone()}
	default:
		panic(fmt.Sprintf("unknown geometry kind %d", g.kind))
	}
}

// normalizePolygon closes every ring and fixes winding: outer CCW, holes CW.
func normalizePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for i, ring := range p {
		r := closeRing(ring.Clone())
		if len(r) < 4 {
			continue
		}
		if i == 0 {
			if r.Orientation() == orb.CW {
				r.Reverse()
			}
		} else {
			if r.Orientation() == orb.CCW {
				r.Reverse()
			}
		}
		out = append(out, r)
	}
	return out
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 {
		return r
	}
	if !r.Closed() {
		r = append(r, r[0])
	}
	return r
}
