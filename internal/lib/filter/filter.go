package filter

import (
	"github.com/dhconnelly/rtreego"

	"fogtrack/internal/lib/geo"
)

// lastPointFilter compares candidates against only the most recently
// accepted point. O(1) per fix; two old-but-adjacent points can both be
// significant relative to each other, which is acceptable for a live
// temporal stream. The cursor is owned by the filter instance, scoped to
// its tracking session.
type lastPointFilter struct {
	minDistanceMiles float64
	last             *geo.Point
}

// NewLastPointFilter creates a filter using the last-accepted-point strategy.
func NewLastPointFilter(minDistanceMiles float64) Filter {
	return &lastPointFilter{minDistanceMiles: minDistanceMiles}
}

func (f *lastPointFilter) IsSignificant(candidate geo.Point) bool {
	if f.last == nil {
		_, err := geo.Distance(candidate, candidate)
		return err == nil
	}
	distance, err := geo.Distance(*f.last, candidate)
	if err != nil {
		return false
	}
	return distance >= f.minDistanceMiles
}

func (f *lastPointFilter) Record(candidate geo.Point) {
	p := candidate
	f.last = &p
}

func (f *lastPointFilter) Reset() {
	f.last = nil
}

// pointEntry adapts a recorded point to the r-tree's spatial interface.
type pointEntry struct {
	point geo.Point
	rect  rtreego.Rect
}

func (e *pointEntry) Bounds() rtreego.Rect { return e.rect }

// neighborhoodFilter checks candidates against every recorded point inside
// a padded bounding box, so it is correct against the full history rather
// than just the latest point. The r-tree prefilter bounds the per-fix cost
// to the local point density.
type neighborhoodFilter struct {
	minDistanceMiles float64
	tree             *rtreego.Rtree
}

// NewNeighborhoodFilter creates a filter using the spatial-index strategy.
func NewNeighborhoodFilter(minDistanceMiles float64) Filter {
	return &neighborhoodFilter{
		minDistanceMiles: minDistanceMiles,
		tree:             rtreego.NewTree(2, 4, 16),
	}
}

func (f *neighborhoodFilter) IsSignificant(candidate geo.Point) bool {
	if _, err := geo.Distance(candidate, candidate); err != nil {
		return false
	}

	latPad := geo.MilesToLatDegrees(f.minDistanceMiles)
	lonPad := geo.MilesToLonDegrees(f.minDistanceMiles, candidate.Latitude)

	rect, err := rtreego.NewRect(
		rtreego.Point{candidate.Longitude - lonPad, candidate.Latitude - latPad},
		[]float64{2 * lonPad, 2 * latPad},
	)
	if err != nil {
		return false
	}

	for _, item := range f.tree.SearchIntersect(rect) {
		entry := item.(*pointEntry)
		distance, err := geo.Distance(entry.point, candidate)
		if err != nil {
			continue
		}
		if distance < f.minDistanceMiles {
			return false
		}
	}
	return true
}

func (f *neighborhoodFilter) Record(candidate geo.Point) {
	rect, err := rtreego.NewRect(
		rtreego.Point{candidate.Longitude, candidate.Latitude},
		[]float64{1e-9, 1e-9},
	)
	if err != nil {
		return
	}
	f.tree.Insert(&pointEntry{point: candidate, rect: rect})
}

func (f *neighborhoodFilter) Reset() {
	f.tree = rtreego.NewTree(2, 4, 16)
}
