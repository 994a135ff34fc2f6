// Package solver runs one optimization request end to end: validation,
// assembly, search and reporting.
package solver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/apperr"
	"routeopt/internal/assemble"
	"routeopt/internal/metrics"
	"routeopt/internal/model"
	"routeopt/internal/report"
	"routeopt/internal/search"
	"routeopt/internal/validate"
)

// Options tune the engine budget beyond what a request may set.
type Options struct {
	// MaxIterations caps every solve; 0 leaves it to the time budgets.
	MaxIterations int
	Seed          int64
}

type Runner struct {
	assembler *assemble.Assembler
	engine    search.Engine
	opts      Options
	log       *zap.Logger
}

func NewRunner(a *assemble.Assembler, e search.Engine, opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{assembler: a, engine: e, opts: opts, log: log.Named("solver")}
}

// Validate checks the request without assembling it.
func (r *Runner) Validate(req *model.OptimizationRequest) error {
	return validate.Request(req)
}

// Run solves the request. On failure the returned result is the error form
// and err is one of the apperr types.
func (r *Runner) Run(ctx context.Context, req *model.OptimizationRequest) (model.OptimizationResult, error) {
	start := time.Now()
	res, err := r.run(ctx, req)
	took := time.Since(start)
	metrics.SolveDuration.Observe(took.Seconds())

	problemID := ""
	if req != nil {
		problemID = req.ProblemID
	}
	if err != nil {
		err = apperr.Classify(problemID, err)
		kind := apperr.KindOf(err)
		metrics.Solves.WithLabelValues(string(kind)).Inc()
		r.log.Warn("optimization failed",
			zap.String("problem_id", problemID),
			zap.String("kind", string(kind)),
			zap.Duration("took", took),
			zap.Error(err),
		)
		return report.OfError(problemID, err), err
	}
	metrics.Solves.WithLabelValues("completed").Inc()
	metrics.HardScore.Set(float64(res.Score.Hard))
	r.log.Info("optimization completed",
		zap.String("problem_id", problemID),
		zap.Int64("hard", res.Score.Hard),
		zap.Int64("medium", res.Score.Medium),
		zap.Int64("soft", res.Score.Soft),
		zap.Duration("took", took),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, req *model.OptimizationRequest) (model.OptimizationResult, error) {
	if err := validate.Request(req); err != nil {
		return model.OptimizationResult{}, err
	}
	p, settings, err := r.assembler.Assemble(ctx, req)
	if err != nil {
		return model.OptimizationResult{}, err
	}

	start := time.Now()
	stats, err := r.engine.Solve(ctx, p, search.Budget{
		Spent:         settings.SolverBudget,
		Unimproved:    settings.UnimprovedBudget,
		MaxIterations: r.opts.MaxIterations,
		Seed:          r.opts.Seed,
	})
	if err != nil {
		return model.OptimizationResult{}, err
	}
	r.log.Debug("search stats",
		zap.String("problem_id", p.ID),
		zap.Int("iterations", stats.Iterations),
		zap.Int("improvements", stats.Improvements),
		zap.Ints("removal_selects", stats.RemovalSelects[:]),
		zap.Ints("insert_selects", stats.InsertSelects[:]),
	)

	res := report.Build(p, time.Since(start), settings.Explain)
	if settings.Explain {
		for _, e := range res.Explanation {
			r.log.Info("constraint",
				zap.String("problem_id", p.ID),
				zap.String("constraint", e.Constraint),
				zap.String("level", e.Level),
				zap.Int64("weight", e.Weight),
				zap.Int64("magnitude", e.Magnitude),
				zap.Int64("score", e.Score),
			)
		}
	}
	return res, nil
}
