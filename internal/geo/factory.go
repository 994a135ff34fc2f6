package geo

import (
	"errors"
	"fmt"
)

// ErrNoRoutingService is returned when road distances are requested but no
// routing service is configured.
var ErrNoRoutingService = errors.New("no routing service configured for " + string(RoadDistance))

// Factory selects a provider per request.
type Factory struct {
	// Road builds the routed provider; nil disables ROAD_DISTANCE.
	Road func(avoidTolls bool) (Provider, error)
}

func (f Factory) Provider(kind Kind, avoidTolls bool) (Provider, error) {
	switch kind {
	case AirDistance:
		return Haversine{}, nil
	case RoadDistance:
		if f.Road == nil {
			return nil, ErrNoRoutingService
		}
		return f.Road(avoidTolls)
	}
	return nil, fmt.Errorf("unknown distance matrix type %q", kind)
}
