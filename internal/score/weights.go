package score

// Constraint names a penalty function. The names appear in explain output.
type Constraint string

const (
	TravelTime      Constraint = "Travel Time"
	TravelDistance  Constraint = "Travel Distance"
	EarlyArrival    Constraint = "Early Arrival"
	LateDeparture   Constraint = "Late Departure"
	VirtualVehicle  Constraint = "Virtual Vehicle"
	LateArrival     Constraint = "Late Arrival"
	VehicleCapacity Constraint = "Vehicle Capacity"
	VehicleVolume   Constraint = "Vehicle Volume"
	MaximumOrders   Constraint = "Maximum Orders"
	MaximumTime     Constraint = "Maximum time"
	MaximumDistance Constraint = "Maximum Distance"
	Requirements    Constraint = "Requirements"
)

// All lists the constraints in evaluation order.
var All = []Constraint{
	Requirements,
	MaximumOrders,
	MaximumTime,
	MaximumDistance,
	VehicleCapacity,
	VehicleVolume,
	LateArrival,
	EarlyArrival,
	LateDeparture,
	VirtualVehicle,
	TravelTime,
	TravelDistance,
}

// Weight is an integer multiplier applied at a level.
type Weight struct {
	Value int64
	Level Level
}

func (w Weight) Active() bool { return w.Value != 0 }

// Weights maps each constraint to its resolved weight. Missing entries are
// treated as inactive.
type Weights map[Constraint]Weight

// DefaultLevel is the level a constraint is scored at unless overridden.
func DefaultLevel(c Constraint) Level {
	switch c {
	case TravelTime, TravelDistance:
		return Soft
	case EarlyArrival, LateDeparture, VirtualVehicle:
		return Medium
	default:
		return Hard
	}
}

// DefaultWeights returns weight 1 for every constraint at its default level.
func DefaultWeights() Weights {
	w := make(Weights, len(All))
	for _, c := range All {
		w[c] = Weight{Value: 1, Level: DefaultLevel(c)}
	}
	return w
}

func (w Weights) Get(c Constraint) Weight {
	if v, ok := w[c]; ok {
		return v
	}
	return Weight{Level: DefaultLevel(c)}
}

func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
