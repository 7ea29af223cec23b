package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// EarthRadiusMiles is the earth radius used for great-circle distances.
const EarthRadiusMiles = 3959.0

// MilesPerLatDegree is the approximate length of one degree of latitude.
// One degree of longitude shrinks by cos(latitude) away from the equator.
const MilesPerLatDegree = 69.0

// maxScalingLatitude bounds the latitude used for longitude scaling. Within
// ~0.1 degrees of the poles cos(lat) approaches zero and the degree
// conversion blows up, so inputs are clamped into this band.
const maxScalingLatitude = 89.9
