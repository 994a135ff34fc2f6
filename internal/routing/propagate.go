package routing

import (
	"fmt"
	"time"
)

// Propagate recomputes arrival times from the given customer forward along
// its vehicle's route, stopping at the first customer whose arrival is
// unchanged. It returns the number of arrivals written.
//
// When the first stop of a route has no preferred departure on its vehicle,
// one is derived (window start minus travel time from the depot, or one hour
// from now) and stored on the vehicle.
func Propagate(p *Problem, customerID string) (int, error) {
	ci, ok := p.customerIdx[customerID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}
	c := p.Customers[ci]
	s := p.placement[ci]
	if s.vehicle < 0 {
		if c.ArrivalTime == nil {
			return 0, nil
		}
		c.ArrivalTime = nil
		return 1, nil
	}

	v := p.Vehicles[s.vehicle]
	var departure *time.Time
	if s.pos > 0 {
		departure = v.at(s.pos - 1).DepartureTime()
	} else {
		if v.PreferredDepartureTime == nil {
			d := suggestDeparture(p, v, c)
			v.PreferredDepartureTime = &d
		}
		departure = v.PreferredDepartureTime
	}

	writes := 0
	for pos := s.pos; pos < len(v.Route); pos++ {
		cur := v.at(pos)
		arrival := arriveFrom(departure, previousVisit(v, pos), cur.Visit)
		if sameInstant(cur.ArrivalTime, arrival) {
			break
		}
		cur.ArrivalTime = arrival
		writes++
		departure = cur.DepartureTime()
	}
	return writes, nil
}

// PropagateAll runs Propagate for every id, in order.
func PropagateAll(p *Problem, ids []string) (int, error) {
	total := 0
	for _, id := range ids {
		n, err := Propagate(p, id)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func suggestDeparture(p *Problem, v *Vehicle, first *Customer) time.Time {
	if first.ReadyTime != nil {
		return first.ReadyTime.Add(-v.Depot.DurationTo(first.Visit))
	}
	return p.now().Add(time.Hour).UTC().Truncate(time.Second)
}

func previousVisit(v *Vehicle, pos int) *Visit {
	if pos == 0 {
		return v.Depot
	}
	return v.at(pos - 1).Visit
}

func arriveFrom(departure *time.Time, from, to *Visit) *time.Time {
	if departure == nil {
		return nil
	}
	t := departure.Add(from.DurationTo(to))
	return &t
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
