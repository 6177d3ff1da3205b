package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SubjectResult is the outcome for one subject, or for the whole batch when
// Subject is empty.
type SubjectResult struct {
	Subject  string        `json:"subject,omitempty"`
	Subjects []string      `json:"subjects,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

func (r SubjectResult) Label() string {
	if r.Subject != "" {
		return r.Subject
	}
	return strings.Join(r.Subjects, ",")
}

// Report collects every subject outcome of one stage run.
type Report struct {
	Stage    string
	Started  time.Time
	Duration time.Duration
	Results  []SubjectResult
}

func (r *Report) Failed() []SubjectResult {
	var out []SubjectResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) Succeeded() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Label())
		}
	}
	return out
}

// Err returns a StageError naming every failed subject, or nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &StageError{Stage: r.Stage, Failures: failed}
}

// StageError reports which subjects of a stage failed.
type StageError struct {
	Stage    string
	Failures []SubjectResult
}

func (e *StageError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Label(), f.Err))
	}
	return fmt.Sprintf("stage %s failed for %s", e.Stage, strings.Join(parts, "; "))
}

// Subjects lists the failed subjects in invocation order.
func (e *StageError) Subjects() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Label())
	}
	return out
}

func (e *StageError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// IsStageError reports whether err carries a StageError.
func IsStageError(err error) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr)
}
