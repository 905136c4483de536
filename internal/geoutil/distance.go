// Package geoutil wraps golang/geo's spherical geometry for the one
// great-circle distance calculation shared by the motion "gps-meters"
// start type, the geozone dual-point-radius containment test, and the
// odometer per-fix accumulation (gpsMetersToPoint in the original).
package geoutil

import "github.com/golang/geo/s2"

// EarthRadiusMeters is the mean earth radius used by every distance
// computation in this module, matching the documented constant.
const EarthRadiusMeters = 6371008.8

// MetersBetween returns the great-circle distance in meters between two
// points given as (lat, lon) in decimal degrees.
func MetersBetween(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}
