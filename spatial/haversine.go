package spatial

import "math"

// EarthRadiusMeters is the sphere radius used for every great-circle distance.
const EarthRadiusMeters = 6371000.0

// toRadians converts degrees to radians.
func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance in meters between two points
// given as latitude/longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := phi2 - phi1
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(math.Min(1, a)))
}

// unitVector projects a lat/lon in degrees onto the unit sphere.
func unitVector(lat, lon float64) [3]float64 {
	phi := toRadians(lat)
	lambda := toRadians(lon)
	cosPhi := math.Cos(phi)
	return [3]float64{
		cosPhi * math.Cos(lambda),
		cosPhi * math.Sin(lambda),
		math.Sin(phi),
	}
}
