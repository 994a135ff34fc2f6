// Package apperr is the error taxonomy reported back to callers of an
// optimization run.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError marks a malformed or insufficient request. It is never
// retried.
type ValidationError struct {
	ProblemID string
	Reason    string
}

func (e *ValidationError) Error() string { return e.Reason }

func Validation(problemID, format string, args ...any) *ValidationError {
	return &ValidationError{ProblemID: problemID, Reason: fmt.Sprintf(format, args...)}
}

// DistanceComputationError aborts a solve when travel data cannot be built.
type DistanceComputationError struct {
	ProblemID string
	Err       error
}

func (e *DistanceComputationError) Error() string {
	return "distance computation failed: " + e.Err.Error()
}

func (e *DistanceComputationError) Unwrap() error { return e.Err }

// AssemblyError reports an inconsistent request that passed validation, such
// as a missing depot or an incomplete travel lookup.
type AssemblyError struct {
	ProblemID string
	Reason    string
}

func (e *AssemblyError) Error() string { return e.Reason }

func Assembly(problemID, format string, args ...any) *AssemblyError {
	return &AssemblyError{ProblemID: problemID, Reason: fmt.Sprintf(format, args...)}
}

// UnexpectedError wraps anything outside the taxonomy.
type UnexpectedError struct {
	ProblemID string
	Err       error
}

func (e *UnexpectedError) Error() string { return "unexpected error: " + e.Err.Error() }

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Kind names an error class for metrics and HTTP mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDistance   Kind = "distance"
	KindAssembly   Kind = "assembly"
	KindUnexpected Kind = "unexpected"
)

func KindOf(err error) Kind {
	var (
		ve *ValidationError
		de *DistanceComputationError
		ae *AssemblyError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &de):
		return KindDistance
	case errors.As(err, &ae):
		return KindAssembly
	}
	return KindUnexpected
}

// Classify returns err unchanged when it belongs to the taxonomy and wraps
// it as an UnexpectedError otherwise.
func Classify(problemID string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnexpected {
		return err
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return err
	}
	return &UnexpectedError{ProblemID: problemID, Err: err}
}

// ProblemIDOf returns the problem id carried by err, if any.
func ProblemIDOf(err error) string {
	var (
		ve *ValidationError
		de *DistanceComputationError
		ae *AssemblyError
		ue *UnexpectedError
	)
	switch {
	case errors.As(err, &ve):
		return ve.ProblemID
	case errors.As(err, &de):
		return de.ProblemID
	case errors.As(err, &ae):
		return ae.ProblemID
	case errors.As(err, &ue):
		return ue.ProblemID
	}
	return ""
}

// ExtractProblemID pulls the problemId value out of a payload that could not
// be decoded. It returns "" when nothing usable is found.
func ExtractProblemID(raw string) string {
	const field = `"problemId":`
	i := strings.Index(raw, field)
	if i < 0 {
		return ""
	}
	rest := raw[i+len(field):]
	if end := strings.IndexAny(rest, ",}"); end >= 0 {
		rest = rest[:end]
	}
	first := strings.Index(rest, `"`)
	last := strings.LastIndex(rest, `"`)
	if first < 0 || last <= first {
		return ""
	}
	return rest[first+1 : last]
}
