// Package geo provides great-circle distance and circular geofences.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used by the haversine formula
const EarthRadiusMeters = 6371000

// Distance returns the great-circle distance in meters between two
// coordinates, computed with the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Point is a WGS84 coordinate
type Point struct {
	Lat float64
	Lng float64
}

// Fence is a circular geofence around a center point
type Fence struct {
	Center       Point
	RadiusMeters float64
}

// DistanceTo returns the distance in meters from the fence center
func (f Fence) DistanceTo(lat, lng float64) float64 {
	return Distance(f.Center.Lat, f.Center.Lng, lat, lng)
}

// Contains reports whether a coordinate lies within the fence. Invalid
// coordinates (NaN, out of range) are outside: a missing or denied location
// never grants access.
func (f Fence) Contains(lat, lng float64) bool {
	if !ValidCoordinate(lat, lng) {
		return false
	}
	return f.DistanceTo(lat, lng) <= f.RadiusMeters
}

// ValidCoordinate reports whether a latitude/longitude pair is usable
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
