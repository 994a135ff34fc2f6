// Package report converts a solved routing problem into the result document.
package report

import (
	"errors"
	"fmt"
	"time"

	"routeopt/internal/apperr"
	"routeopt/internal/constraint"
	"routeopt/internal/model"
	"routeopt/internal/routing"
	"routeopt/internal/score"
)

// Build re-scores the problem and maps every vehicle, in fleet order, to an
// assignment. Explain adds the per-constraint breakdown.
func Build(p *routing.Problem, took time.Duration, explain bool) model.OptimizationResult {
	s := constraint.Evaluate(p)
	secs := int64(took / time.Second)
	res := model.OptimizationResult{
		ProblemID:      p.ID,
		Score:          details(s),
		SolverDuration: &secs,
		Assignments:    make([]model.AssignmentResult, 0, len(p.Vehicles)),
	}
	for _, v := range p.Vehicles {
		res.Assignments = append(res.Assignments, assignment(v))
	}
	if explain {
		res.Explanation = Explanation(constraint.Explain(p))
	}
	return res
}

func assignment(v *routing.Vehicle) model.AssignmentResult {
	a := model.AssignmentResult{
		FleetID:             v.ID,
		Orders:              make([]model.OrderResult, 0, v.Len()),
		IsVirtual:           v.Virtual,
		VirtualGroupID:      v.VirtualGroupID,
		TotalTravelDistance: float64(v.TotalDrivingDistance()) / 1000,
		TotalTimeDuration:   v.TotalDrivingTime(),
		TotalWeight:         v.TotalWeight(),
		TotalVolume:         v.TotalVolume(),
	}
	for _, c := range v.Customers() {
		o := model.OrderResult{ID: c.ID}
		if c.ArrivalTime != nil {
			o.ArrivalTime = model.NewLocalTime(*c.ArrivalTime)
		}
		a.Orders = append(a.Orders, o)
	}
	if d := v.DepartureTime(); d != nil {
		a.DepartureTime = model.NewLocalTime(*d)
	}
	return a
}

func details(s score.Score) *model.ScoreDetails {
	return &model.ScoreDetails{Hard: s.Hard, Medium: s.Medium, Soft: s.Soft}
}

// Explanation maps constraint matches to their wire form.
func Explanation(matches []constraint.Match) []model.ConstraintResult {
	out := make([]model.ConstraintResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.ConstraintResult{
			Constraint: string(m.Constraint),
			Level:      m.Weight.Level.String(),
			Weight:     m.Weight.Value,
			Magnitude:  m.Magnitude,
			Score:      m.Score.Of(m.Weight.Level),
		})
	}
	return out
}

// OfError is the failure form of a result. The message is the error text;
// details name its class.
func OfError(problemID string, err error) model.OptimizationResult {
	if problemID == "" {
		problemID = apperr.ProblemIDOf(err)
	}
	return model.OptimizationResult{
		ProblemID: problemID,
		Error: &model.ErrorResult{
			ErrorMessage: err.Error(),
			ErrorDetails: errorDetails(err),
		},
	}
}

// InProgress is the placeholder stored while a problem is being solved.
func InProgress(problemID string) model.OptimizationResult {
	return model.OptimizationResult{ProblemID: problemID}
}

func errorDetails(err error) string {
	kind := apperr.KindOf(err)
	if cause := errors.Unwrap(err); cause != nil {
		return fmt.Sprintf("%s: %v", kind, cause)
	}
	return string(kind)
}
