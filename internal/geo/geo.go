// Package geo provides the proximity math for the public locator:
// great-circle distance and the bounding-box prefilter that keeps the
// store query cheap before exact ranking.
package geo

import (
	"math"

	"github.com/plantedhq/venuescout/internal/store"
)

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two WGS84 points
// in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BoxAround returns the bounding box covering radiusKm around the point.
// Longitude spread widens with latitude; at the poles the box spans all
// longitudes rather than dividing by zero.
func BoxAround(lat, lng, radiusKm float64) store.BoundingBox {
	dLat := radiusKm / 111.0
	box := store.BoundingBox{
		MinLat: lat - dLat,
		MaxLat: lat + dLat,
		MinLng: -180,
		MaxLng: 180,
	}
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat > 1e-6 {
		dLng := radiusKm / (111.0 * cosLat)
		box.MinLng = lng - dLng
		box.MaxLng = lng + dLng
	}
	if box.MinLat < -90 {
		box.MinLat = -90
	}
	if box.MaxLat > 90 {
		box.MaxLat = 90
	}
	return box
}

// ValidPoint reports whether the coordinates are inside WGS84 bounds and
// not the null-island zero value.
func ValidPoint(lat, lng float64) bool {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return false
	}
	return !(lat == 0 && lng == 0)
}
