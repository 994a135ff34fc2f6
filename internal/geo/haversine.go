package geo

import (
	"context"
	"math"
	"time"
)

const (
	earthRadiusKm = 6378.1370
	averageKmh    = 60.0
)

// Haversine estimates legs along the great circle at a constant 60 km/h.
type Haversine struct{}

func (Haversine) Kind() Kind { return AirDistance }

func (Haversine) Between(_ context.Context, from, to Point) (Leg, error) {
	return haversineLeg(from, to), nil
}

func (Haversine) Matrix(_ context.Context, from, to []Point) (Matrix, error) {
	m := make(Matrix, len(from))
	for _, a := range from {
		for _, b := range to {
			m.Set(a.ID, b.ID, haversineLeg(a, b))
		}
	}
	return m, nil
}

func haversineLeg(from, to Point) Leg {
	if from.sameAs(to) {
		return Leg{}
	}
	km := HaversineKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	secs := int64(km / averageKmh * 3600)
	return Leg{Distance: km, Duration: time.Duration(secs) * time.Second}
}

// HaversineKm is the great-circle distance in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
