package store

import (
    "context"
    "errors"
    "time"

    "routeopt/internal/model"
)

// Status is the lifecycle state of a stored problem.
type Status string

const (
    StatusInProgress Status = "IN_PROGRESS"
    StatusCompleted  Status = "COMPLETED"
    StatusError      Status = "ERROR"
)

// Record is the latest known state of one problem. Result is set for
// COMPLETED and, when available, for ERROR.
type Record struct {
    ProblemID string                    `json:"problemId"`
    Status    Status                    `json:"status"`
    Result    *model.OptimizationResult `json:"result,omitempty"`
    Error     string                    `json:"error,omitempty"`
    UpdatedAt time.Time                 `json:"updatedAt"`
}

// Store is the persistence interface used by the API server and the worker.
type Store interface {
    // Save inserts or replaces the record for its problem id.
    Save(ctx context.Context, rec Record) error
    Get(ctx context.Context, problemID string) (Record, error)
    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
