package geo

import (
	"math"

	"gighop/internal/domain"
)

// EarthRadiusMeters is the mean earth radius (IUGG).
const EarthRadiusMeters = 6_371_008.8

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b domain.Coordinate) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// clamp: rounding can push h just past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
