// Package validate checks an optimization request before any assembly.
package validate

import (
	"strings"

	"routeopt/internal/apperr"
	"routeopt/internal/model"
)

// Request applies the structural and business rules in order and returns
// the first violation as an *apperr.ValidationError.
func Request(req *model.OptimizationRequest) error {
	if req == nil || len(req.Orders) == 0 {
		return fail(req, "At least one order must be provided")
	}
	if len(req.Fleet) == 0 {
		return fail(req, "At least one fleet member must be provided")
	}
	if blank(req.ProblemID) {
		return fail(req, "'problemId' it's a required field")
	}
	for _, o := range req.Orders {
		if blank(o.ID) {
			return fail(req, "'id' it's a required field for all orders")
		}
	}
	for _, o := range req.Orders {
		if o.Origin.IsEmpty() {
			return fail(req, "'origin' and it's respective fields are required for all orders")
		}
	}
	for _, o := range req.Orders {
		if o.Destination.IsEmpty() {
			return fail(req, "'destination' and it's respective fields are required for all orders")
		}
	}
	windows := 0
	for _, o := range req.Orders {
		if !o.ServiceWindow.IsEmpty() {
			windows++
		}
	}
	if windows > 0 && windows != len(req.Orders) {
		return fail(req, "'serviceWindow' must be either defined or empty for every order")
	}
	for _, f := range req.Fleet {
		if blank(f.ID) {
			return fail(req, "'id' it's a required field for all fleet members")
		}
	}
	for _, f := range req.Fleet {
		if f.StartingLocation.IsEmpty() {
			return fail(req, "'startingLocation' and it's respective fields are required for all fleet members")
		}
	}
	var virtual []model.VirtualFleet
	if req.Config != nil {
		virtual = req.Config.VirtualFleet
	}
	for _, v := range virtual {
		if v.StartingLocation.IsEmpty() || blank(v.GroupID) {
			return fail(req, "'startingLocation' and 'groupId' has to be specified for the virtual fleet")
		}
	}

	t := totalsOf(req, virtual)
	if t.fleetCapacity < t.orderWeight {
		return fail(req, "Total fleet capacity (%d) is not enough to cover total order request (%d). You can augment it with virtual vehicles", t.fleetCapacity, t.orderWeight)
	}
	if t.fleetVolume < t.orderVolume {
		return fail(req, "Total fleet volume (%d) is not enough to cover total order request (%d). You can augment it with virtual vehicles", t.fleetVolume, t.orderVolume)
	}
	if req.Config != nil {
		if name, ok := negativeWeight(req.Config.Constraints); ok {
			return fail(req, "Constraint '%s' weight must not be negative", name)
		}
	}
	return nil
}

// negativeWeight returns the first constraint given a weight below zero.
func negativeWeight(c *model.Constraints) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, e := range []struct {
		name string
		data *model.ConstraintData
	}{
		{"travelTime", c.TravelTime},
		{"travelDistance", c.TravelDistance},
		{"maxTime", c.MaxTime},
		{"maxDistance", c.MaxDistance},
		{"earlyArrival", c.EarlyArrival},
		{"lateArrival", c.LateArrival},
		{"lateDeparture", c.LateDeparture},
		{"orderCount", c.OrderCount},
		{"virtualVehicle", c.VirtualVehicle},
		{"vehicleWeight", c.VehicleWeight},
		{"vehicleVolume", c.VehicleVolume},
		{"orderRequirements", c.OrderRequirements},
	} {
		if e.data != nil && e.data.Weight != nil && *e.data.Weight < 0 {
			return e.name, true
		}
	}
	return "", false
}

// totals are whole units; each addition truncates toward zero.
type totals struct {
	fleetCapacity, fleetVolume int64
	orderWeight, orderVolume   int64
}

func totalsOf(req *model.OptimizationRequest, virtual []model.VirtualFleet) totals {
	var t totals
	add := func(acc *int64, v float64) { *acc = int64(float64(*acc) + v) }
	for _, f := range req.Fleet {
		if f.Limits == nil {
			continue
		}
		if f.Limits.MaxVolume != nil {
			add(&t.fleetVolume, *f.Limits.MaxVolume)
		}
		if f.Limits.MaxCapacity != nil {
			add(&t.fleetCapacity, *f.Limits.MaxCapacity)
		}
	}
	for _, v := range virtual {
		if v.Limits == nil {
			continue
		}
		if v.Limits.MaxCapacity != nil {
			add(&t.fleetCapacity, *v.Limits.MaxCapacity*float64(v.Size))
		}
		if v.Limits.MaxVolume != nil {
			add(&t.fleetVolume, *v.Limits.MaxVolume*float64(v.Size))
		}
	}
	for _, o := range req.Orders {
		if o.Attributes == nil {
			continue
		}
		if o.Attributes.Volume != nil {
			add(&t.orderVolume, *o.Attributes.Volume)
		}
		if o.Attributes.Weight != nil {
			add(&t.orderWeight, *o.Attributes.Weight)
		}
	}
	return t
}

func fail(req *model.OptimizationRequest, format string, args ...any) error {
	id := ""
	if req != nil {
		id = req.ProblemID
	}
	return apperr.Validation(id, format, args...)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
