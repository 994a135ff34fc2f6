package model

type ScoreDetails struct {
	Hard   int64 `json:"hard"`
	Medium int64 `json:"medium"`
	Soft   int64 `json:"soft"`
}

type OrderResult struct {
	ID          string     `json:"id"`
	ArrivalTime *LocalTime `json:"arrivalTime,omitempty"`
}

type AssignmentResult struct {
	FleetID             string        `json:"fleetId"`
	Orders              []OrderResult `json:"orders"`
	IsVirtual           bool          `json:"isVirtual"`
	VirtualGroupID      string        `json:"virtualGroupId,omitempty"`
	TotalTravelDistance float64       `json:"totalTravelDistance"`
	TotalTimeDuration   int64         `json:"totalTimeDuration"`
	TotalWeight         float64       `json:"totalWeight"`
	TotalVolume         float64       `json:"totalVolume"`
	DepartureTime       *LocalTime    `json:"departureTime,omitempty"`
}

// ConstraintResult is one line of the explain breakdown.
type ConstraintResult struct {
	Constraint string `json:"constraint"`
	Level      string `json:"level"`
	Weight     int64  `json:"weight"`
	Magnitude  int64  `json:"magnitude"`
	Score      int64  `json:"score"`
}

type ErrorResult struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

type OptimizationResult struct {
	ProblemID      string             `json:"problemId,omitempty"`
	Score          *ScoreDetails      `json:"score,omitempty"`
	SolverDuration *int64             `json:"solverDuration,omitempty"`
	Assignments    []AssignmentResult `json:"assignments,omitempty"`
	Explanation    []ConstraintResult `json:"explanation,omitempty"`
	Error          *ErrorResult       `json:"error,omitempty"`
}

func (r OptimizationResult) Failed() bool { return r.Error != nil }
