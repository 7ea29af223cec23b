package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// sliverArea is the planar area (in square degrees) below which a contour
// produced by the clipper is treated as numerical noise and dropped. A
// 0.1-mile disc covers roughly 6e-6 square degrees, four orders of magnitude
// above this cutoff.
const sliverArea = 1e-10

// Union merges b into a. A nil a returns b verbatim (first-disc bootstrap).
// Separate components stay separate polygons of a multipolygon until a
// connecting shape merges them. Degenerate input surfaces as *MergeError.
func Union(a, b *Geometry) (*Geometry, error) {
	if b == nil || isEmpty(b) {
		if a == nil {
			return nil, &MergeError{Op: "union", Err: errors.New("both operands empty")}
		}
		return a.Clone(), nil
	}
	if a == nil || isEmpty(a) {
		return b.Clone(), nil
	}

	result, err := construct(polyclip.UNION, toClip(a), toClip(b))
	if err != nil {
		return nil, err
	}
	merged, err := fromClip(result)
	if err != nil {
		return nil, &MergeError{Op: "union", Err: err}
	}
	if merged == nil {
		return nil, &MergeError{Op: "union", Err: errors.New("union produced empty geometry")}
	}
	return merged, nil
}

// UnionRing merges a single closed ring (typically a disc) into a.
func UnionRing(a *Geometry, ring orb.Ring) (*Geometry, error) {
	return Union(a, FromRing(ring))
}

// Difference subtracts subtrahend from minuend. It returns (nil, nil) when
// the subtrahend fully covers the minuend.
func Difference(minuend, subtrahend *Geometry) (*Geometry, error) {
	if minuend == nil || isEmpty(minuend) {
		return nil, nil
	}
	if subtrahend == nil || isEmpty(subtrahend) {
		return minuend.Clone(), nil
	}

	result, err := construct(polyclip.DIFFERENCE, toClip(minuend), toClip(subtrahend))
	if err != nil {
		return nil, err
	}
	diff, err := fromClip(result)
	if err != nil {
		return nil, &MergeError{Op: "difference", Err: err}
	}
	return diff, nil
}

// Area returns the planar covered area in square degrees. Holes subtract.
func Area(g *Geometry) float64 {
	if g == nil {
		return 0
	}
	return planar.Area(g.MultiPolygon())
}

// construct runs the clipper, converting its panics on pathological input
// into a MergeError instead of taking the process down.
func construct(op polyclip.Op, subject, clipping polyclip.Polygon) (result polyclip.Polygon, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &MergeError{Op: opName(op), Err: fmt.Errorf("clipper panic: %v", r)}
		}
	}()
	return subject.Construct(op, clipping), nil
}

func opName(op polyclip.Op) string {
	switch op {
	case polyclip.UNION:
		return "union"
	case polyclip.DIFFERENCE:
		return "difference"
	case polyclip.INTERSECTION:
		return "intersection"
	default:
		return "clip"
	}
}

func isEmpty(g *Geometry) bool {
	for _, p := range g.MultiPolygon() {
		if len(p) > 0 && len(p[0]) >= 4 {
			return false
		}
	}
	return true
}

// toClip flattens every ring into a clipper contour. The Martinez sweep is
// orientation-insensitive, so holes need no special marking on the way in.
func toClip(g *Geometry) polyclip.Polygon {
	var out polyclip.Polygon
	for _, p := range g.MultiPolygon() {
		for _, ring := range p {
			if len(ring) < 4 {
				continue
			}
			contour := make(polyclip.Contour, 0, len(ring)-1)
			// The clipper expects open contours; drop the closing vertex.
			for _, pt := range ring[:len(ring)-1] {
				contour = append(contour, polyclip.Point{X: pt[0], Y: pt[1]})
			}
			out = append(out, contour)
		}
	}
	return out
}

// fromClip regroups the clipper's flat contour list into polygons with
// holes. A contour contained in an even number of others is an outer ring;
// odd-depth contours become holes of their smallest containing outer ring.
func fromClip(p polyclip.Polygon) (*Geometry, error) {
	type entry struct {
		contour polyclip.Contour
		ring    orb.Ring
		area    float64
		depth   int
		outer   int // index into outers, for holes
	}

	entries := make([]*entry, 0, len(p))
	for _, contour := range p {
		if len(contour) < 3 {
			continue
		}
		ring := contourToRing(contour)
		area := math.Abs(planar.Area(ring))
		if area < sliverArea {
			continue
		}
		entries = append(entries, &entry{contour: contour, ring: ring, area: area, outer: -1})
	}
	if len(entries) == 0 {
		return nil, nil
	}

	for i, e := range entries {
		for j, other := range entries {
			if i == j {
				continue
			}
			if other.area > e.area && containsContour(other.contour, e.contour) {
				e.depth++
			}
		}
	}

	// Largest-first so parents are placed before their holes.
	sort.Slice(entries, func(i, j int) bool { return entries[i].area > entries[j].area })

	var outers []*entry
	var holes []*entry
	for _, e := range entries {
		if e.depth%2 == 0 {
			outers = append(outers, e)
		} else {
			holes = append(holes, e)
		}
	}

	polygons := make(orb.MultiPolygon, len(outers))
	for i, o := range outers {
		polygons[i] = orb.Polygon{o.ring}
	}
	for _, h := range holes {
		// Smallest containing outer is the direct parent; outers are sorted
		// largest-first so the last match wins.
		parent := -1
		for i, o := range outers {
			if o.area > h.area && containsContour(o.contour, h.contour) {
				parent = i
			}
		}
		if parent < 0 {
			return nil, fmt.Errorf("hole contour with no containing outer ring")
		}
		polygons[parent] = append(polygons[parent], h.ring)
	}

	return FromMultiPolygon(polygons), nil
}

func contourToRing(c polyclip.Contour) orb.Ring {
	ring := make(orb.Ring, 0, len(c)+1)
	for _, pt := range c {
		ring = append(ring, orb.Point{pt.X, pt.Y})
	}
	return closeRing(ring)
}

// containsContour reports whether inner lies inside outer, testing a vertex
// that is strictly off outer's boundary.
func containsContour(outer, inner polyclip.Contour) bool {
	for _, pt := range inner {
		on := false
		for _, op := range outer {
			if op == pt {
				on = true
				break
			}
		}
		if !on {
			return outer.Contains(pt)
		}
	}
	// Every vertex shared: treat as contained.
	return true
}
