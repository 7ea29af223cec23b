package filter

import "fogtrack/internal/lib/geo"

// DefaultMinDistanceMiles is the live-tracking significance threshold,
// roughly 100 feet.
const DefaultMinDistanceMiles = 0.02

// ManualMinDistanceMiles is the tighter threshold used by manual-offset
// paths that intentionally inject frequent points.
const ManualMinDistanceMiles = 0.005

// Filter decides whether a candidate fix is far enough from previously
// recorded points to be worth incorporating into revealed geometry.
// Implementations are not safe for concurrent use; callers serialize access.
type Filter interface {
	// IsSignificant reports whether the candidate clears the distance
	// threshold against recorded state. Invalid coordinates are never
	// significant.
	IsSignificant(candidate geo.Point) bool

	// Record marks the candidate as accepted.
	Record(candidate geo.Point)

	// Reset forgets all recorded state.
	Reset()
}
