package pipeline

import (
	"errors"
	"fmt"

	"github.com/dukex/ifured/pkg/executor"
)

var (
	// ErrUnknownStep indicates a resume point that is not part of the plan.
	ErrUnknownStep = errors.New("unknown step")

	// ErrEmptyTarget indicates a workflow whose target has no observations.
	ErrEmptyTarget = errors.New("target has no observations")
)

// RunError reports the step at which a workflow run stopped.
type RunError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("workflow %s failed at step %s: %v", e.Workflow, e.Step, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Subjects lists the failed subjects when the step failed per subject.
func (e *RunError) Subjects() []string {
	var stageErr *executor.StageError
	if errors.As(e.Err, &stageErr) {
		return stageErr.Subjects()
	}
	return nil
}
