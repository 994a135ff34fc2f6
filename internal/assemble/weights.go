package assemble

import (
	"fmt"

	"routeopt/internal/model"
	"routeopt/internal/routing"
	"routeopt/internal/score"
)

// features records which optional constraint families the problem uses.
type features struct {
	maxDistance  bool
	maxTime      bool
	maxOrders    bool
	maxVolume    bool
	maxWeight    bool
	windows      bool
	virtual      bool
	requirements bool
}

func detect(vehicles []*routing.Vehicle, customers []*routing.Customer, cfg *model.Config) features {
	var f features
	for _, v := range vehicles {
		f.maxDistance = f.maxDistance || v.Limits.MaxDistance > 0
		f.maxTime = f.maxTime || v.Limits.MaxTime > 0
		f.maxOrders = f.maxOrders || v.Limits.MaxOrders > 0
		f.maxVolume = f.maxVolume || (v.Limits.MaxVolume != nil && *v.Limits.MaxVolume > 0)
		f.maxWeight = f.maxWeight || (v.Limits.MaxWeight != nil && *v.Limits.MaxWeight > 0)
	}
	for _, c := range customers {
		f.windows = f.windows || c.HasWindow()
		f.requirements = f.requirements || len(c.Requirements) > 0
	}
	f.virtual = cfg != nil && cfg.VirtualFleet != nil
	return f
}

// resolveWeights returns weight 0 for every constraint whose feature is
// unused, otherwise the request weight and level when given, falling back
// to the defaults.
func resolveWeights(f features, cfg *model.Constraints, defaults score.Weights) (score.Weights, error) {
	if cfg == nil {
		cfg = &model.Constraints{}
	}
	entries := []struct {
		c       score.Constraint
		enabled bool
		req     *model.ConstraintData
	}{
		{score.TravelTime, true, cfg.TravelTime},
		{score.TravelDistance, true, cfg.TravelDistance},
		{score.MaximumDistance, f.maxDistance, cfg.MaxDistance},
		{score.MaximumTime, f.maxTime, cfg.MaxTime},
		{score.MaximumOrders, f.maxOrders, cfg.OrderCount},
		{score.VehicleVolume, f.maxVolume, cfg.VehicleVolume},
		{score.VehicleCapacity, f.maxWeight, cfg.VehicleWeight},
		{score.LateArrival, f.windows, cfg.LateArrival},
		{score.LateDeparture, f.windows, cfg.LateDeparture},
		{score.EarlyArrival, f.windows, cfg.EarlyArrival},
		{score.VirtualVehicle, f.virtual, cfg.VirtualVehicle},
		{score.Requirements, f.requirements, cfg.OrderRequirements},
	}

	out := make(score.Weights, len(entries))
	for _, e := range entries {
		w := defaults.Get(e.c)
		if e.req != nil && e.req.Type != nil {
			l, err := score.ParseLevel(*e.req.Type)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: %w", e.c, err)
			}
			w.Level = l
		}
		switch {
		case !e.enabled:
			w.Value = 0
		case e.req != nil && e.req.Weight != nil:
			w.Value = int64(*e.req.Weight)
		}
		out[e.c] = w
	}
	return out, nil
}
