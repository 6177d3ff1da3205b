package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound indicates no journal entry exists for the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID indicates an identifier that cannot name a journal entry.
	ErrInvalidRunID = errors.New("invalid run id")
)

// RunError wraps journal errors with the operation and run they concern.
type RunError struct {
	Op    string // Operation being performed (e.g., "RunByID", "SaveRun")
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
