package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// Distance calculates the great-circle distance between two points in miles
// using the Haversine formula.
func Distance(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMiles * c, nil
}

// DistanceFromCoords calculates distance between raw coordinate pairs.
// Convenience wrapper around Distance.
func DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error) {
	return Distance(Point{Latitude: lat1, Longitude: lon1}, Point{Latitude: lat2, Longitude: lon2})
}

// MilesToLatDegrees converts a distance in miles to degrees of latitude.
func MilesToLatDegrees(miles float64) float64 {
	return miles / MilesPerLatDegree
}

// MilesToLonDegrees converts a distance in miles to degrees of longitude at
// the given latitude. The latitude is clamped away from the poles before the
// cosine so the conversion never divides by zero.
func MilesToLonDegrees(miles, atLatitude float64) float64 {
	lat := clampLatitude(atLatitude)
	return miles / MilesPerLatDegree / math.Cos(lat*math.Pi/180)
}

// MakeDisc approximates a circle of radiusMiles around center as a closed
// polygon ring. The ring has steps+1 vertices in (lon, lat) order, the last
// repeating the first. Longitude offsets are scaled by cos(latitude) to
// compensate for meridian convergence; steps below 8 are raised to 8.
func MakeDisc(center Point, radiusMiles float64, steps int) (orb.Ring, error) {
	if !isValidCoordinate(center) {
		return nil, errors.New("invalid center coordinates")
	}
	if radiusMiles <= 0 {
		return nil, errors.New("radius must be positive")
	}
	if steps < 8 {
		steps = 8
	}

	latRadius := MilesToLatDegrees(radiusMiles)
	lonRadius := MilesToLonDegrees(radiusMiles, center.Latitude)

	ring := make(orb.Ring, 0, steps+1)
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		ring = append(ring, orb.Point{
			center.Longitude + lonRadius*math.Cos(angle),
			center.Latitude + latRadius*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])

	return ring, nil
}

// NewPoint creates a Point from latitude and longitude values with validation.
func NewPoint(latitude, longitude float64) (Point, error) {
	p := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(p) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return p, nil
}

func clampLatitude(lat float64) float64 {
	if lat > maxScalingLatitude {
		return maxScalingLatitude
	}
	if lat < -maxScalingLatitude {
		return -maxScalingLatitude
	}
	return lat
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(p Point) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}
