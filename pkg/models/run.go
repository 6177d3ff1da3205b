// Package models defines the run journal records.
package models

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus is the outcome of one plan step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Run is the journal entry of one workflow invocation.
type Run struct {
	ID         string        `json:"id"          validate:"required,uuid"`
	Workflow   string        `json:"workflow"    validate:"required"`
	Status     RunStatus     `json:"status"      validate:"required,oneof=running completed failed"`
	WorkDir    string        `json:"work_dir"`
	ConfigPath string        `json:"config_path,omitempty"`
	FromStep   string        `json:"from_step,omitempty"`
	Steps      []*StepRecord `json:"steps"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// StepRecord is the outcome of one plan step inside a run.
type StepRecord struct {
	Step      string           `json:"step"`
	Stage     string           `json:"stage,omitempty"`
	Status    StepStatus       `json:"status"`
	Subjects  []string         `json:"subjects,omitempty"`
	Failures  []SubjectFailure `json:"failures,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// SubjectFailure names one subject a stage failed for.
type SubjectFailure struct {
	Subject string `json:"subject"`
	Error   string `json:"error"`
}

// LastStep returns the most recent step record, or nil.
func (r *Run) LastStep() *StepRecord {
	if len(r.Steps) == 0 {
		return nil
	}
	return r.Steps[len(r.Steps)-1]
}

// FailedStep returns the first failed step, or nil.
func (r *Run) FailedStep() *StepRecord {
	for _, step := range r.Steps {
		if step.Status == StepStatusFailed {
			return step
		}
	}
	return nil
}

func (r *Run) Finish(status RunStatus, at time.Time) {
	r.Status = status
	r.FinishedAt = &at
}
