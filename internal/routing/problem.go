package routing

import (
	"errors"
	"fmt"
	"time"

	"routeopt/internal/score"
)

var (
	ErrUnknownCustomer = errors.New("unknown customer")
	ErrUnknownVehicle  = errors.New("unknown vehicle")
	ErrAssigned        = errors.New("customer already assigned")
	ErrNotAssigned     = errors.New("customer not assigned")
	ErrPosition        = errors.New("position out of range")
)

type slot struct {
	vehicle int
	pos     int
}

var unassigned = slot{vehicle: -1, pos: -1}

// Problem is the aggregate an engine mutates during one solve.
type Problem struct {
	ID        string
	Locations []*Visit
	Vehicles  []*Vehicle
	Customers []*Customer
	Weights   score.Weights
	Score     score.Score

	// Now is the clock used when a departure time must be derived.
	Now func() time.Time

	customerIdx map[string]int
	vehicleIdx  map[string]int
	placement   []slot
}

// NewProblem links vehicles to customers and indexes both. Routes already
// present on the vehicles are adopted as the initial assignment.
func NewProblem(id string, locations []*Visit, vehicles []*Vehicle, customers []*Customer, weights score.Weights) (*Problem, error) {
	p := &Problem{
		ID:          id,
		Locations:   locations,
		Vehicles:    vehicles,
		Customers:   customers,
		Weights:     weights,
		Now:         time.Now,
		customerIdx: make(map[string]int, len(customers)),
		vehicleIdx:  make(map[string]int, len(vehicles)),
		placement:   make([]slot, len(customers)),
	}
	for i, c := range customers {
		if _, dup := p.customerIdx[c.ID]; dup {
			return nil, fmt.Errorf("duplicate customer %q", c.ID)
		}
		p.customerIdx[c.ID] = i
		p.placement[i] = unassigned
	}
	for i, v := range vehicles {
		if _, dup := p.vehicleIdx[v.ID]; dup {
			return nil, fmt.Errorf("duplicate vehicle %q", v.ID)
		}
		p.vehicleIdx[v.ID] = i
		v.customers = customers
		for pos, idx := range v.Route {
			if idx < 0 || idx >= len(customers) || p.placement[idx] != unassigned {
				return nil, fmt.Errorf("vehicle %q: invalid route entry %d", v.ID, idx)
			}
			p.placement[idx] = slot{vehicle: i, pos: pos}
		}
	}
	return p, nil
}

func (p *Problem) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Depots returns the locations used as vehicle start points.
func (p *Problem) Depots() []*Visit { return p.filter(func(v *Visit) bool { return v.Depot }) }

// Visits returns the locations used as order destinations.
func (p *Problem) Visits() []*Visit { return p.filter(func(v *Visit) bool { return v.Stop }) }

func (p *Problem) filter(keep func(*Visit) bool) []*Visit {
	var out []*Visit
	for _, v := range p.Locations {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (p *Problem) Customer(id string) (*Customer, bool) {
	i, ok := p.customerIdx[id]
	if !ok {
		return nil, false
	}
	return p.Customers[i], true
}

func (p *Problem) Vehicle(id string) (*Vehicle, bool) {
	i, ok := p.vehicleIdx[id]
	if !ok {
		return nil, false
	}
	return p.Vehicles[i], true
}

// Assigned reports whether the customer is on some route.
func (p *Problem) Assigned(customerID string) bool {
	return p.VehicleOf(customerID) != nil
}

// VehicleOf returns the vehicle serving the customer, nil when unassigned.
func (p *Problem) VehicleOf(customerID string) *Vehicle {
	i, ok := p.customerIdx[customerID]
	if !ok || p.placement[i].vehicle < 0 {
		return nil
	}
	return p.Vehicles[p.placement[i].vehicle]
}

// Position returns the customer's index in its vehicle's route, -1 when
// unassigned.
func (p *Problem) Position(customerID string) int {
	i, ok := p.customerIdx[customerID]
	if !ok {
		return -1
	}
	return p.placement[i].pos
}

// Previous returns the customer visited before, nil at the head of a route.
func (p *Problem) Previous(customerID string) *Customer {
	return p.neighbour(customerID, -1)
}

// Next returns the customer visited after, nil at the tail of a route.
func (p *Problem) Next(customerID string) *Customer {
	return p.neighbour(customerID, 1)
}

func (p *Problem) neighbour(customerID string, step int) *Customer {
	i, ok := p.customerIdx[customerID]
	if !ok {
		return nil
	}
	s := p.placement[i]
	if s.vehicle < 0 {
		return nil
	}
	v := p.Vehicles[s.vehicle]
	n := s.pos + step
	if n < 0 || n >= len(v.Route) {
		return nil
	}
	return v.at(n)
}

// Unassigned lists the ids of customers without a vehicle.
func (p *Problem) Unassigned() []string {
	var out []string
	for i, s := range p.placement {
		if s.vehicle < 0 {
			out = append(out, p.Customers[i].ID)
		}
	}
	return out
}

// Insert places an unassigned customer at pos in the vehicle's route. The
// returned ids must be passed to Propagate.
func (p *Problem) Insert(customerID, vehicleID string, pos int) ([]string, error) {
	ci, ok := p.customerIdx[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}
	vi, ok := p.vehicleIdx[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}
	if p.placement[ci].vehicle >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrAssigned, customerID)
	}
	v := p.Vehicles[vi]
	if pos < 0 || pos > len(v.Route) {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrPosition, pos, len(v.Route))
	}
	v.Route = append(v.Route, 0)
	copy(v.Route[pos+1:], v.Route[pos:])
	v.Route[pos] = ci
	p.reindex(vi, pos)

	touched := []string{customerID}
	if pos+1 < len(v.Route) {
		touched = append(touched, v.at(pos+1).ID)
	}
	return touched, nil
}

// Remove takes the customer off its route. The returned ids must be passed
// to Propagate.
func (p *Problem) Remove(customerID string) ([]string, error) {
	ci, ok := p.customerIdx[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}
	s := p.placement[ci]
	if s.vehicle < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotAssigned, customerID)
	}
	v := p.Vehicles[s.vehicle]
	v.Route = append(v.Route[:s.pos], v.Route[s.pos+1:]...)
	p.placement[ci] = unassigned
	p.reindex(s.vehicle, s.pos)

	touched := []string{customerID}
	if s.pos < len(v.Route) {
		touched = append(touched, v.at(s.pos).ID)
	}
	return touched, nil
}

// Move relocates a customer; pos is interpreted after the removal.
func (p *Problem) Move(customerID, vehicleID string, pos int) ([]string, error) {
	var touched []string
	if p.VehicleOf(customerID) != nil {
		t, err := p.Remove(customerID)
		if err != nil {
			return nil, err
		}
		touched = append(touched, t[1:]...)
	}
	t, err := p.Insert(customerID, vehicleID, pos)
	if err != nil {
		return nil, err
	}
	return append(t, touched...), nil
}

func (p *Problem) reindex(vi, from int) {
	v := p.Vehicles[vi]
	for pos := from; pos < len(v.Route); pos++ {
		p.placement[v.Route[pos]] = slot{vehicle: vi, pos: pos}
	}
}

// Snapshot captures routes, departures and arrivals.
type Snapshot struct {
	routes     [][]int
	departures []*time.Time
	arrivals   []*time.Time
}

func (p *Problem) Snapshot() Snapshot {
	s := Snapshot{
		routes:     make([][]int, len(p.Vehicles)),
		departures: make([]*time.Time, len(p.Vehicles)),
		arrivals:   make([]*time.Time, len(p.Customers)),
	}
	for i, v := range p.Vehicles {
		s.routes[i] = append([]int(nil), v.Route...)
		s.departures[i] = v.PreferredDepartureTime
	}
	for i, c := range p.Customers {
		s.arrivals[i] = c.ArrivalTime
	}
	return s
}

func (p *Problem) Restore(s Snapshot) {
	for i := range p.placement {
		p.placement[i] = unassigned
	}
	for i, v := range p.Vehicles {
		v.Route = append(v.Route[:0], s.routes[i]...)
		v.PreferredDepartureTime = s.departures[i]
		p.reindex(i, 0)
	}
	for i, c := range p.Customers {
		c.ArrivalTime = s.arrivals[i]
	}
}

// Clone returns a problem with independent assignment state. Visits are
// shared since their lookups are read-only once solving starts.
func (p *Problem) Clone() *Problem {
	customers := make([]*Customer, len(p.Customers))
	for i, c := range p.Customers {
		cc := *c
		customers[i] = &cc
	}
	vehicles := make([]*Vehicle, len(p.Vehicles))
	for i, v := range p.Vehicles {
		vv := *v
		vv.Route = append([]int(nil), v.Route...)
		vehicles[i] = &vv
	}
	out, err := NewProblem(p.ID, p.Locations, vehicles, customers, p.Weights.Clone())
	if err != nil {
		// p was built by NewProblem, so its indices are consistent.
		panic(err)
	}
	out.Score = p.Score
	out.Now = p.Now
	return out
}
