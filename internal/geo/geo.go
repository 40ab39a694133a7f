// Package geo provides the spherical-earth coordinate math shared by the
// triangulation and spread engines: geodetic/ECEF conversion, camera bearing
// vectors, great-circle bearings and distances.
package geo

import "math"

// EarthRadius is the spherical earth radius in meters used for all
// conversions. Changing it breaks stored uncertainty figures.
const EarthRadius = 6371000.0

// Vec3 is a point or direction in earth-centered cartesian space, meters.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + u.
func (v Vec3) Add(u Vec3) Vec3 { return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z} }

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 { return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and u.
func (v Vec3) Dot(u Vec3) float64 { return v.X*u.X + v.Y*u.Y + v.Z*u.Z }

// Norm returns the euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Midpoint returns the point halfway between v and u.
func (v Vec3) Midpoint(u Vec3) Vec3 { return v.Add(u).Scale(0.5) }

// LatLonToCartesian converts geodetic coordinates (degrees, meters above the
// sphere) to earth-centered cartesian meters.
func LatLonToCartesian(lat, lon, alt float64) Vec3 {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	r := EarthRadius + alt
	return Vec3{
		X: r * math.Cos(latRad) * math.Cos(lonRad),
		Y: r * math.Cos(latRad) * math.Sin(lonRad),
		Z: r * math.Sin(latRad),
	}
}

// CartesianToLatLon converts an earth-centered cartesian point back to
// geodetic latitude, longitude (degrees) and altitude above the sphere
// (meters).
func CartesianToLatLon(p Vec3) (lat, lon, alt float64) {
	lon = math.Atan2(p.Y, p.X) * 180 / math.Pi
	hyp := math.Sqrt(p.X*p.X + p.Y*p.Y)
	lat = math.Atan2(p.Z, hyp) * 180 / math.Pi
	alt = p.Norm() - EarthRadius
	return lat, lon, alt
}

// BearingToDirection converts a compass bearing and pitch (degrees) to a unit
// direction vector in the local frame used by the ray intersection: x east,
// y north, z up.
func BearingToDirection(bearing, pitch float64) Vec3 {
	bearingRad := bearing * math.Pi / 180
	pitchRad := pitch * math.Pi / 180
	return Vec3{
		X: math.Sin(bearingRad) * math.Cos(pitchRad),
		Y: math.Cos(bearingRad) * math.Cos(pitchRad),
		Z: math.Sin(pitchRad),
	}
}

// InitialBearing returns the initial great-circle bearing from (lat1, lon1)
// to (lat2, lon2) in degrees, normalized to [0, 360).
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	dLon := (lon2 - lon1) * math.Pi / 180
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)

	bearing := math.Atan2(y, x) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}
	return bearing
}

// AngleDifference returns the minimal absolute difference between two angles
// in degrees, in [0, 180].
func AngleDifference(a, b float64) float64 {
	diff := math.Mod(a-b, 360)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return math.Abs(diff)
}

// Haversine returns the great-circle distance between two geodetic points in
// meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
