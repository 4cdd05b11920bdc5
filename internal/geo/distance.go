// Package geo provides the pure geometry used by sampling: great-circle
// distance, ring centroids and point-in-polygon tests.
package geo

import (
	"math"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b model.Coords) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceBetween returns the distance between two parcels and false when
// either one has no coordinates.
func DistanceBetween(a, b model.Parcel) (float64, bool) {
	if a.Coords == nil || b.Coords == nil {
		return 0, false
	}
	return Haversine(*a.Coords, *b.Coords), true
}
