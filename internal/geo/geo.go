// Package geo provides great-circle distance and travel time helpers.
package geo

import (
	"math"

	"fieldops/internal/model"
)

const earthRadiusMiles = 3958.8

// Miles returns the haversine distance between two coordinates in miles.
// Callers are responsible for filtering out (0,0) "unknown" coordinates
// before calling; they are not treated specially here.
func Miles(a, b model.Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMiles * c
}

// TravelMinutes converts a distance in miles to whole minutes of driving
// at the given average speed, rounding up.
func TravelMinutes(miles, speedMPH float64) int {
	if miles <= 0 || speedMPH <= 0 {
		return 0
	}
	return int(math.Ceil(miles / speedMPH * 60))
}

// PathMiles sums the leg distances of an ordered set of stops, optionally
// prefixed by a start point.
func PathMiles(start model.Coordinate, haveStart bool, stops []model.Coordinate) float64 {
	total := 0.0
	cur := start
	ok := haveStart
	for _, s := range stops {
		if s.IsZero() {
			continue
		}
		if ok {
			total += Miles(cur, s)
		}
		cur = s
		ok = true
	}
	return total
}
