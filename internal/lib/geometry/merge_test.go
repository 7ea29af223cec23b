package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fogtrack/internal/lib/geo"
)

func disc(t *testing.T, lat, lon, radius float64) *Geometry {
	t.Helper()
	ring, err := geo.MakeDisc(geo.Point{Latitude: lat, Longitude: lon}, radius, 18)
	require.NoError(t, err)
	return FromRing(ring)
}

func TestUnion_NilBootstrap(t *testing.T) {
	d := disc(t, 37.7749, -122.4194, 0.1)

	merged, err := Union(nil, d)
	require.NoError(t, err)
	assert.InDelta(t, Area(d), Area(merged), 1e-12, "First union must return the disc verbatim")
}

func TestUnion_OverlappingDiscsMergeToOnePolygon(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)
	b := disc(t, 37.7760, -122.4194, 0.1) // ~0.076 miles north, well within overlap

	merged, err := Union(a, b)
	require.NoError(t, err)
	require.NotNil(t, merged)

	assert.Equal(t, KindPolygon, merged.Kind(), "Overlapping discs must merge into a single polygon")
	assert.Greater(t, Area(merged), Area(a), "Union must cover more than one disc")
	assert.Less(t, Area(merged), Area(a)+Area(b), "Union of overlapping discs is smaller than the sum")
}

func TestUnion_DisjointDiscsStaySeparate(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)
	b := disc(t, 37.8049, -122.4194, 0.1) // ~2 miles north, no overlap

	merged, err := Union(a, b)
	require.NoError(t, err)
	require.NotNil(t, merged)

	assert.Equal(t, KindMultiPolygon, merged.Kind(), "Disjoint discs stay separate polygons")
	assert.Len(t, merged.MultiPolygon(), 2)
	assert.InDelta(t, Area(a)+Area(b), Area(merged), Area(a)*0.001)
}

func TestUnion_BridgingDiscJoinsComponents(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)
	b := disc(t, 37.7779, -122.4194, 0.1) // two disc radii apart: tangent-ish, disjoint

	merged, err := Union(a, b)
	require.NoError(t, err)

	// A disc centered between the two bridges them into one component.
	bridge := disc(t, 37.7764, -122.4194, 0.1)
	joined, err := Union(merged, bridge)
	require.NoError(t, err)

	assert.Equal(t, KindPolygon, joined.Kind(), "Connecting disc must merge the components")
}

func TestUnion_CommutativeAndIdempotent(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)
	b := disc(t, 37.7760, -122.4194, 0.1)

	ab, err := Union(a, b)
	require.NoError(t, err)
	ba, err := Union(b, a)
	require.NoError(t, err)
	assert.InDelta(t, Area(ab), Area(ba), 1e-12, "Union must be commutative by covered area")

	aa, err := Union(a, a)
	require.NoError(t, err)
	assert.InDelta(t, Area(a), Area(aa), Area(a)*1e-6, "Union with itself must not change covered area")
}

func TestDifference(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)
	b := disc(t, 37.7760, -122.4194, 0.1)

	diff, err := Difference(b, a)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Less(t, Area(diff), Area(b), "Difference must remove the overlap")
	assert.Greater(t, Area(diff), 0.0)

	// Identical inputs always produce identical output.
	diff2, err := Difference(b, a)
	require.NoError(t, err)
	assert.Equal(t, diff.MultiPolygon(), diff2.MultiPolygon())
}

func TestDifference_FullyCovered(t *testing.T) {
	small := disc(t, 37.7749, -122.4194, 0.05)
	big := disc(t, 37.7749, -122.4194, 0.1)

	diff, err := Difference(small, big)
	require.NoError(t, err)
	assert.Nil(t, diff, "Fully covered minuend yields nil")
}

func TestDifference_NilOperands(t *testing.T) {
	d := disc(t, 37.7749, -122.4194, 0.1)

	diff, err := Difference(nil, d)
	require.NoError(t, err)
	assert.Nil(t, diff)

	diff, err = Difference(d, nil)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.InDelta(t, Area(d), Area(diff), 1e-12)
}

func TestUnion_RingSurroundingGapProducesHole(t *testing.T) {
	// A ring of discs around a center point leaves a hole until the center
	// disc is added.
	// Octagon of 0.09-mile discs on a 0.15-mile circle: adjacent discs
	// overlap (spacing ~0.115 mi) but none reaches the center.
	var ring *Geometry
	var err error
	centers := []struct{ lat, lon float64 }{
		{37.77827, -122.41940}, // N
		{37.77764, -122.41746}, // NE
		{37.77610, -122.41665}, // E
		{37.77456, -122.41746}, // SE
		{37.77393, -122.41940}, // S
		{37.77456, -122.42135}, // SW
		{37.77610, -122.42215}, // W
		{37.77764, -122.42135}, // NW
	}
	for _, c := range centers {
		ring, err = Union(ring, disc(t, c.lat, c.lon, 0.09))
		require.NoError(t, err)
	}
	require.NotNil(t, ring)

	holes := 0
	for _, p := range ring.MultiPolygon() {
		holes += len(p) - 1
	}
	require.Greater(t, holes, 0, "Enclosed gap must come out as a hole ring")

	// Winding: outer CCW, holes CW.
	for _, p := range ring.MultiPolygon() {
		require.Equal(t, orb.CCW, p[0].Orientation())
		for _, hole := range p[1:] {
			require.Equal(t, orb.CW, hole.Orientation())
		}
	}

	// Filling the gap removes the hole.
	filled, err := Union(ring, disc(t, 37.7761, -122.4194, 0.09))
	require.NoError(t, err)
	assert.Greater(t, Area(filled), Area(ring), "Filling the hole grows the covered area")
}

func TestUnion_DegenerateRingDoesNotCorrupt(t *testing.T) {
	a := disc(t, 37.7749, -122.4194, 0.1)

	// A collapsed ring: all vertices identical.
	degenerate := FromRing(orb.Ring{
		{-122.4194, 37.7749},
		{-122.4194, 37.7749},
		{-122.4194, 37.7749},
		{-122.4194, 37.7749},
	})

	merged, err := Union(a, degenerate)
	if err != nil {
		var mergeErr *MergeError
		assert.ErrorAs(t, err, &mergeErr, "Degenerate input must surface as MergeError")
		return
	}
	// Best-effort result is also acceptable, as long as a survives intact.
	assert.InDelta(t, Area(a), Area(merged), Area(a)*1e-6)
}

func TestArea_NilIsZero(t *testing.T) {
	assert.Zero(t, Area(nil))
}
