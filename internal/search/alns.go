// Package search holds the engines that explore assignments of a routing
// problem. The reference engine is an adaptive large-neighbourhood search.
package search

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/constraint"
	"routeopt/internal/routing"
	"routeopt/internal/score"
)

var ErrNoVehicles = errors.New("search: problem has no vehicles")

// Engine mutates the problem in place and leaves it holding its best
// assignment, propagated and scored.
type Engine interface {
	Solve(ctx context.Context, p *routing.Problem, b Budget) (Stats, error)
}

// Budget bounds one solve. Zero fields are unbounded, except that a solve
// with no bound at all stops after construction.
type Budget struct {
	Spent         time.Duration
	Unimproved    time.Duration
	MaxIterations int
	Seed          int64
}

func (b Budget) bounded() bool {
	return b.Spent > 0 || b.Unimproved > 0 || b.MaxIterations > 0
}

type Stats struct {
	Iterations       int
	Improvements     int
	AcceptedWorse    int
	Best             score.Score
	RemovalSelects   [2]int // random, shaw
	InsertSelects    [2]int // greedy, regret2
	RemovalWeights   [2]float64
	InsertionWeights [2]float64
	Took             time.Duration
}

// ALNS is destroy-and-repair search with simulated annealing acceptance and
// roulette-wheel operator selection.
type ALNS struct {
	InitialTemp             float64    // soft points; 0 derives it from the first score
	Cooling                 float64    // per iteration, in (0,1)
	InitialRemovalWeights   [2]float64 // [random, shaw]
	InitialInsertionWeights [2]float64 // [greedy, regret2]
	MaxRemove               int        // 0 scales with the number of customers
	Logger                  *zap.Logger
}

func NewALNS(log *zap.Logger) *ALNS {
	return &ALNS{Logger: log}
}

// Solve builds a full assignment by cheapest insertion, then repeatedly
// removes and reinserts a few customers until the budget runs out. The best
// assignment seen is restored before returning.
func (a *ALNS) Solve(ctx context.Context, p *routing.Problem, b Budget) (Stats, error) {
	start := time.Now()
	if len(p.Vehicles) == 0 {
		return Stats{}, ErrNoVehicles
	}
	seed := b.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Derived departures must not drift with the wall clock during a solve.
	frozen := p.Now
	if frozen == nil {
		frozen = time.Now
	}
	t0 := frozen()
	p.Now = func() time.Time { return t0 }
	defer func() { p.Now = frozen }()

	r := newRun(p, rand.New(rand.NewSource(seed)))
	if err := r.construct(ctx); err != nil {
		return Stats{}, err
	}
	curr := constraint.Evaluate(p)
	best, bestSnap := curr, p.Snapshot()

	remW, insW := a.InitialRemovalWeights, a.InitialInsertionWeights
	if remW == ([2]float64{}) {
		remW = [2]float64{1, 1}
	}
	if insW == ([2]float64{}) {
		insW = [2]float64{1, 1}
	}
	temp := a.InitialTemp
	if temp <= 0 {
		temp = math.Max(1, math.Abs(float64(curr.Soft))*0.05)
	}
	cool := 0.995
	if a.Cooling > 0 && a.Cooling < 1 {
		cool = a.Cooling
	}
	maxRemove := a.MaxRemove
	if maxRemove <= 0 {
		maxRemove = max(3, len(p.Customers)/5)
	}
	maxRemove = min(maxRemove, len(p.Customers))

	stats := Stats{}
	lastImprovement := time.Now()
	for b.bounded() && maxRemove > 0 {
		if b.MaxIterations > 0 && stats.Iterations >= b.MaxIterations {
			break
		}
		if b.Spent > 0 && time.Since(start) >= b.Spent {
			break
		}
		if b.Unimproved > 0 && time.Since(lastImprovement) >= b.Unimproved {
			break
		}
		if ctx.Err() != nil {
			break
		}
		stats.Iterations++

		snap := p.Snapshot()
		k := 1 + r.rng.Intn(maxRemove)
		op := selectOp(remW[:], r.rng)
		stats.RemovalSelects[op]++
		ip := selectOp(insW[:], r.rng)
		stats.InsertSelects[ip]++

		var removed []string
		switch op {
		case 0:
			removed = r.randomRemoval(k)
		case 1:
			removed = r.shawRemoval(k)
		}
		var err error
		if err = r.removeAll(removed); err == nil {
			switch ip {
			case 0:
				err = r.greedyInsert(removed)
			case 1:
				err = r.regretInsert(removed)
			}
		}
		if err != nil {
			p.Restore(bestSnap)
			constraint.Evaluate(p)
			return stats, err
		}
		cand := constraint.Evaluate(p)

		switch {
		case cand.Better(best):
			best, bestSnap = cand, p.Snapshot()
			curr = cand
			remW[op] += 0.1
			insW[ip] += 0.1
			stats.Improvements++
			lastImprovement = time.Now()
		case accept(cand, curr, temp, r.rng):
			if cand.Compare(curr) < 0 {
				stats.AcceptedWorse++
			}
			curr = cand
			remW[op] += 0.01
			insW[ip] += 0.01
		default:
			p.Restore(snap)
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
	}

	p.Restore(bestSnap)
	stats.Best = constraint.Evaluate(p)
	stats.RemovalWeights = remW
	stats.InsertionWeights = insW
	stats.Took = time.Since(start)

	if a.Logger != nil {
		a.Logger.Debug("search finished",
			zap.String("problem_id", p.ID),
			zap.Int("iterations", stats.Iterations),
			zap.Int("improvements", stats.Improvements),
			zap.Int("accepted_worse", stats.AcceptedWorse),
			zap.Stringer("best", stats.Best),
			zap.Duration("took", stats.Took),
		)
	}
	return stats, nil
}

// accept is the annealing test. A candidate worse at the hard or medium
// level is rejected; a soft loss of d passes with probability exp(-d/temp).
func accept(cand, curr score.Score, temp float64, rng *rand.Rand) bool {
	if cand.Compare(curr) >= 0 {
		return true
	}
	if cand.Hard != curr.Hard || cand.Medium != curr.Medium {
		return false
	}
	d := float64(curr.Soft - cand.Soft)
	return rng.Float64() < math.Exp(-d/(temp+1e-9))
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
