// Package routing is the mutable domain model searched by an engine: depots,
// visits, vehicles owning ordered customer routes, and the arrival-time
// propagation that keeps them consistent.
package routing

import "time"

// Position is a WGS84 coordinate in degrees.
type Position struct {
	Latitude  float64
	Longitude float64
}

// Visit is an identified location holding travel lookups to every other
// location of its problem. A location used as depot and destination is a
// single Visit with both flags set.
type Visit struct {
	ID string
	Position
	Depot bool
	Stop  bool

	distances map[string]float64
	durations map[string]time.Duration
}

func NewVisit(id string, pos Position) *Visit {
	return &Visit{
		ID:        id,
		Position:  pos,
		distances: map[string]float64{},
		durations: map[string]time.Duration{},
	}
}

// SetTravel records the leg from v to the visit with id toID.
func (v *Visit) SetTravel(toID string, km float64, d time.Duration) {
	if v.distances == nil {
		v.distances = map[string]float64{}
		v.durations = map[string]time.Duration{}
	}
	v.distances[toID] = km
	v.durations[toID] = d
}

func (v *Visit) HasTravel(toID string) bool {
	if toID == v.ID {
		return true
	}
	_, ok := v.distances[toID]
	return ok
}

// DistanceKm is the leg length in kilometres.
func (v *Visit) DistanceKm(to *Visit) float64 {
	if to == nil || to.ID == v.ID {
		return 0
	}
	return v.distances[to.ID]
}

// DistanceTo is the leg length in whole metres.
func (v *Visit) DistanceTo(to *Visit) int64 {
	return int64(v.DistanceKm(to) * 1000)
}

func (v *Visit) DurationTo(to *Visit) time.Duration {
	if to == nil || to.ID == v.ID {
		return 0
	}
	return v.durations[to.ID]
}

// TimeTo is the leg duration in whole seconds.
func (v *Visit) TimeTo(to *Visit) int64 {
	return int64(v.DurationTo(to) / time.Second)
}
