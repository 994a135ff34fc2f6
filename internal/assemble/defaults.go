package assemble

import (
	"time"

	"routeopt/internal/geo"
	"routeopt/internal/score"
)

// Defaults is the last tier of configuration resolution. Limits of 0 mean
// no limit.
type Defaults struct {
	MatrixType       geo.Kind
	MaxOrders        int
	MaxTime          int64
	MaxDistance      int64
	SolverBudget     time.Duration
	UnimprovedBudget time.Duration
	AvoidTolls       bool
	Explain          bool
	BackToOrigin     bool
	Weights          score.Weights
}

// DefaultValues is the built-in defaults table. The assembler never mutates
// it.
var DefaultValues = Defaults{
	MatrixType:       geo.RoadDistance,
	MaxOrders:        0,
	MaxTime:          0,
	MaxDistance:      0,
	SolverBudget:     300 * time.Second,
	UnimprovedBudget: 10 * time.Second,
	AvoidTolls:       false,
	Explain:          false,
	BackToOrigin:     true,
	Weights:          score.DefaultWeights(),
}
