// Package constraint evaluates the penalty functions over a routing problem.
package constraint

import (
	"routeopt/internal/routing"
	"routeopt/internal/score"
)

// magnitude returns the unweighted penalty of one constraint summed over
// its entities.
type magnitude func(p *routing.Problem) int64

var magnitudes = map[score.Constraint]magnitude{
	score.Requirements:    requirements,
	score.MaximumOrders:   perVehicle((*routing.Vehicle).ExcessOrders),
	score.MaximumTime:     perVehicle((*routing.Vehicle).ExcessTime),
	score.MaximumDistance: perVehicle((*routing.Vehicle).ExcessDistance),
	score.VehicleCapacity: perVehicle((*routing.Vehicle).ExcessWeight),
	score.VehicleVolume:   perVehicle((*routing.Vehicle).ExcessVolume),
	score.LateArrival:     perCustomer((*routing.Customer).LateArrivalMinutes),
	score.EarlyArrival:    perCustomer((*routing.Customer).WaitingMinutes),
	score.LateDeparture:   perCustomer((*routing.Customer).LateDepartureMinutes),
	score.VirtualVehicle:  perVehicle(virtualUsed),
	score.TravelTime:      perVehicle((*routing.Vehicle).TotalDrivingTime),
	score.TravelDistance:  travelDistance,
}

// Match is the contribution of one constraint to the score.
type Match struct {
	Constraint score.Constraint
	Weight     score.Weight
	Magnitude  int64
	Score      score.Score
}

// Evaluate computes the weighted score of the current assignment and stores
// it on the problem. Every constraint is evaluated; a weight of 0 makes its
// contribution zero.
func Evaluate(p *routing.Problem) score.Score {
	var total score.Score
	for _, c := range score.All {
		w := p.Weights.Get(c)
		total = total.Add(score.Penalty(w.Level, w.Value*magnitudes[c](p)))
	}
	p.Score = total
	return total
}

// Explain returns one match per constraint in evaluation order. Inactive
// constraints still report their magnitude with a zero score.
func Explain(p *routing.Problem) []Match {
	out := make([]Match, 0, len(score.All))
	for _, c := range score.All {
		w := p.Weights.Get(c)
		m := Match{Constraint: c, Weight: w, Magnitude: magnitudes[c](p)}
		m.Score = score.Penalty(w.Level, w.Value*m.Magnitude)
		out = append(out, m)
	}
	return out
}

func perVehicle(fn func(*routing.Vehicle) int64) magnitude {
	return func(p *routing.Problem) int64 {
		var sum int64
		for _, v := range p.Vehicles {
			sum += fn(v)
		}
		return sum
	}
}

// perCustomer sums over assigned customers; unassigned ones carry no
// arrival and contribute nothing.
func perCustomer(fn func(*routing.Customer) int64) magnitude {
	return func(p *routing.Problem) int64 {
		var sum int64
		for _, v := range p.Vehicles {
			for _, c := range v.Customers() {
				sum += fn(c)
			}
		}
		return sum
	}
}

func requirements(p *routing.Problem) int64 {
	var sum int64
	for _, v := range p.Vehicles {
		for _, c := range v.Customers() {
			sum += c.MissingRequirements(v)
		}
	}
	return sum
}

func travelDistance(p *routing.Problem) int64 {
	var sum int64
	for _, v := range p.Vehicles {
		for pos := 0; pos < v.Len(); pos++ {
			sum += v.DistanceFromPrevious(pos)
		}
	}
	return sum
}

func virtualUsed(v *routing.Vehicle) int64 {
	if v.Virtual && v.HasCustomers() {
		return 1
	}
	return 0
}
