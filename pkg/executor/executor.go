// Package executor runs one pipeline stage: clean previous outputs, check
// references, invoke the engine for the batch or for each subject, and
// report per-subject outcomes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyBatch    = errors.New("stage has no subjects")
	ErrNoInvocation  = errors.New("stage declares neither batch nor per-subject steps")
	ErrOutputMissing = errors.New("engine reported success but output is missing")
)

// Step is one unit of work inside a stage: an engine call or a local file
// operation such as the carry-forward copy.
type Step struct {
	Name  string
	call  *engine.Call
	local func(ctx context.Context) error
}

func Invoke(call engine.Call) Step {
	return Step{Name: call.Task, call: &call}
}

func Local(name string, fn func(ctx context.Context) error) Step {
	return Step{Name: name, local: fn}
}

// Cleanup lists what a stage deletes before running.
type Cleanup struct {
	Keys  []artifact.Key
	Paths []string
	Globs []string
}

// Spec describes one stage run. Exactly one of Batch or Each is set.
// Setup runs once before Each; if it fails no subject runs. Scratch is
// removed after the subjects ran, whatever their outcome.
type Spec struct {
	Stage    string
	Subjects []string
	Clean    Cleanup
	Require  func() error
	Setup    []Step
	Batch    []Step
	Each     func(subject string) []Step
	Produces func(subject string) []artifact.Key
	Scratch  Cleanup
}

type Executor struct {
	engine engine.Engine
	store  *artifact.Store
	logger *slog.Logger
	tracer trace.Tracer
}

func New(eng engine.Engine, store *artifact.Store, logger *slog.Logger) *Executor {
	return &Executor{
		engine: eng,
		store:  store,
		logger: logger,
		tracer: otelhelper.Tracer(),
	}
}

func (e *Executor) Store() *artifact.Store {
	return e.store
}

func (e *Executor) Engine() engine.Engine {
	return e.engine
}

// Run executes spec. The returned error is either a precondition failure
// (nothing was invoked) or the report's StageError.
func (e *Executor) Run(ctx context.Context, spec Spec) (*Report, error) {
	logger := e.logger.With("stage", spec.Stage)
	report := &Report{Stage: spec.Stage, Started: time.Now().UTC()}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "stage "+spec.Stage,
		attribute.String(otelhelper.StageIDKey, spec.Stage),
		attribute.StringSlice(otelhelper.SubjectsKey, spec.Subjects),
	)

	err := e.run(ctx, logger, spec, report)
	report.Duration = time.Since(report.Started)
	otelhelper.End(span, err, attribute.String(otelhelper.StageIDKey, spec.Stage))

	if err != nil {
		logger.ErrorContext(ctx, "Stage failed", "error", err, "duration", report.Duration)
		return report, err
	}

	logger.InfoContext(ctx, "Stage completed", "subjects", len(spec.Subjects), "duration", report.Duration)
	return report, nil
}

func (e *Executor) run(ctx context.Context, logger *slog.Logger, spec Spec, report *Report) error {
	if spec.Batch == nil && spec.Each == nil {
		return fmt.Errorf("stage %s: %w", spec.Stage, ErrNoInvocation)
	}
	if len(spec.Subjects) == 0 {
		return fmt.Errorf("stage %s: %w", spec.Stage, ErrEmptyBatch)
	}

	if spec.Require != nil {
		if err := spec.Require(); err != nil {
			return fmt.Errorf("stage %s: %w", spec.Stage, err)
		}
	}

	if err := e.clean(ctx, logger, spec.Clean); err != nil {
		return fmt.Errorf("stage %s: %w", spec.Stage, err)
	}

	logger.InfoContext(ctx, "Running stage", "subjects", strings.Join(spec.Subjects, ","))

	defer func() {
		if err := e.clean(ctx, logger, spec.Scratch); err != nil {
			logger.WarnContext(ctx, "Failed to remove scratch files", "error", err)
		}
	}()

	if spec.Batch != nil {
		result := e.runSubject(ctx, logger, spec, "", spec.Batch, true)
		result.Subjects = append([]string{}, spec.Subjects...)
		report.Results = append(report.Results, result)
		return report.Err()
	}

	if len(spec.Setup) > 0 {
		result := e.runSubject(ctx, logger, spec, "", spec.Setup, false)
		if result.Err != nil {
			result.Subjects = append([]string{}, spec.Subjects...)
			report.Results = append(report.Results, result)
			return report.Err()
		}
	}

	for _, subject := range spec.Subjects {
		result := e.runSubject(ctx, logger.With("subject", subject), spec, subject, spec.Each(subject), true)
		report.Results = append(report.Results, result)
	}

	return report.Err()
}

func (e *Executor) clean(ctx context.Context, logger *slog.Logger, c Cleanup) error {
	if err := e.store.Delete(c.Keys...); err != nil {
		return err
	}
	if err := e.store.DeletePath(c.Paths...); err != nil {
		return err
	}
	if len(c.Globs) > 0 {
		n, err := e.store.DeleteGlob(c.Globs...)
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "Removed previous outputs", "globs", c.Globs, "files", n)
	}
	return nil
}

func (e *Executor) runSubject(ctx context.Context, logger *slog.Logger, spec Spec, subject string, steps []Step, verify bool) SubjectResult {
	started := time.Now()
	result := SubjectResult{Subject: subject}

	attrs := []attribute.KeyValue{attribute.String(otelhelper.StageIDKey, spec.Stage)}
	if subject != "" {
		attrs = append(attrs, attribute.String(otelhelper.SubjectKey, subject))
	}
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, spec.Stage+" "+subjectLabel(subject), attrs...)

	for _, step := range steps {
		if err := e.runStep(ctx, logger, subject, step); err != nil {
			result.Err = err
			break
		}
	}

	if verify && result.Err == nil && spec.Produces != nil {
		result.Err = e.checkOutputs(spec, subject)
	}

	result.Duration = time.Since(started)
	otelhelper.End(span, result.Err, attrs...)

	if result.Err != nil {
		logger.ErrorContext(ctx, "Subject failed", "error", result.Err)
	}

	return result
}

// checkOutputs verifies the subject's outputs, or every subject's for a batch.
func (e *Executor) checkOutputs(spec Spec, subject string) error {
	subjects := []string{subject}
	if subject == "" {
		subjects = spec.Subjects
	}
	for _, s := range subjects {
		for _, key := range spec.Produces(s) {
			if !e.store.Exists(key) {
				return fmt.Errorf("%s: %w", key.Name(), ErrOutputMissing)
			}
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, subject string, step Step) error {
	if step.local != nil {
		logger.DebugContext(ctx, "Running local step", "step", step.Name)
		return step.local(ctx)
	}

	call := *step.call
	if call.Subject == "" {
		call.Subject = subject
	}

	logger.InfoContext(ctx, "Invoking engine task", "task", call.Task)

	err := e.engine.Invoke(ctx, call)
	if err == nil {
		return nil
	}

	var invErr *engine.InvocationError
	if errors.As(err, &invErr) {
		return err
	}
	return &engine.InvocationError{Task: call.Task, Subject: call.Subject, Err: err}
}

func subjectLabel(subject string) string {
	if subject == "" {
		return "batch"
	}
	return subject
}
