// Package geofence classifies GPS fixes against circular boundaries.
package geofence

import "math"

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the haversine great-circle distance between two
// coordinates. No antimeridian or pole normalisation is applied; latitudes
// past the poles still yield a finite distance.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	// Rounding can leave a outside [0, 1] for out-of-range latitudes.
	a = math.Max(0, math.Min(1, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters for two points.
func Distance(a, b Point) float64 {
	return DistanceMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsWithin reports whether distance lies inside radius. The boundary counts as inside.
func IsWithin(distance float64, radiusMeters int) bool {
	return distance <= float64(radiusMeters)
}

// Fence is a circle around Center.
type Fence struct {
	Center       Point
	RadiusMeters int
}

// Check returns the distance from p to the centre and whether p is inside.
func (f Fence) Check(p Point) (float64, bool) {
	d := Distance(f.Center, p)
	return d, IsWithin(d, f.RadiusMeters)
}
