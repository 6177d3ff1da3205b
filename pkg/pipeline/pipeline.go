// Package pipeline composes the reduction stages into the standard-star,
// calibrations and science workflows and records every run in the journal.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/otelhelper"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/reference"
	"github.com/dukex/ifured/pkg/stages"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HousekeepingStep is the journal name of the housekeeping pass.
const HousekeepingStep = "housekeeping"

type Pipeline struct {
	cfg     *config.Config
	stages  *stages.Stages
	store   *artifact.Store
	journal persistence.Persistence
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates a pipeline. A nil journal disables run recording.
func New(cfg *config.Config, stg *stages.Stages, journal persistence.Persistence, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		stages:  stg,
		store:   stg.Store(),
		journal: journal,
		logger:  logger,
		tracer:  otelhelper.Tracer(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunOptions tunes one workflow run.
type RunOptions struct {
	PlanOptions

	// FromStep resumes the plan at a step boundary.
	FromStep string
	// SkipHousekeeping starts directly with the plan.
	SkipHousekeeping bool
	// ConfigPath is recorded in the journal.
	ConfigPath string
}

// Housekeeping clears temporary files from the working directory, creates
// the master bias when it is missing and installs the MDF from the
// calibrations directory when the working directory has none.
func (p *Pipeline) Housekeeping(ctx context.Context) error {
	return p.housekeeping(ctx, true)
}

func (p *Pipeline) housekeeping(ctx context.Context, installMDF bool) error {
	removed, err := p.store.DeleteGlob("tmp*", "*.log")
	if err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "Removed temporary files", "count", removed)

	if err := p.ensureMasterBias(ctx); err != nil {
		return err
	}

	if !installMDF || p.store.ExistsPath(p.cfg.MDF) {
		return nil
	}

	src := p.store.CalibrationFile(p.cfg.MDF)
	if err := reference.RequirePath(p.store, artifact.RoleFlat, "mdf", src); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "Copying MDF", "from", src)

	return p.store.CopyFile(src, p.cfg.MDF)
}

func (p *Pipeline) ensureMasterBias(ctx context.Context) error {
	if p.store.ExistsPath(p.store.MasterBiasPath()) {
		p.logger.DebugContext(ctx, "Master bias present", "path", p.store.MasterBiasPath())
		return nil
	}

	p.logger.InfoContext(ctx, "Making master bias", "biases", len(p.cfg.BiasRefs))
	_, err := p.stages.RunBiasCombine(ctx, p.cfg.BiasRefs)
	return err
}

// Run executes a workflow: housekeeping, then every plan step in order,
// stopping at the first failing step. The returned journal entry is
// complete even when the run failed.
func (p *Pipeline) Run(ctx context.Context, workflow string, opts RunOptions) (*models.Run, error) {
	plan, err := p.Plan(workflow, opts.PlanOptions)
	if err != nil {
		return nil, err
	}
	plan, err = plan.From(opts.FromStep)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:         uuid.NewString(),
		Workflow:   workflow,
		Status:     models.RunStatusRunning,
		WorkDir:    p.store.Layout().WorkDir,
		ConfigPath: opts.ConfigPath,
		FromStep:   opts.FromStep,
		Steps:      make([]*models.StepRecord, 0, len(plan.Steps)+1),
		StartedAt:  p.now(),
	}

	logger := p.logger.With("workflow", workflow, "run_id", run.ID)
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "run "+workflow,
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowKey, workflow),
	)

	logger.InfoContext(ctx, "Starting workflow", "steps", plan.Names(), "from", opts.FromStep)
	p.save(ctx, logger, run)

	err = p.execute(ctx, logger, plan, run, opts)
	if err != nil {
		run.Error = err.Error()
		run.Finish(models.RunStatusFailed, p.now())
		logger.ErrorContext(ctx, "Workflow failed", "error", err)
	} else {
		run.Finish(models.RunStatusCompleted, p.now())
		logger.InfoContext(ctx, "Workflow completed", "duration", run.FinishedAt.Sub(run.StartedAt))
	}

	p.save(ctx, logger, run)
	otelhelper.End(span, err, attribute.String(otelhelper.WorkflowKey, workflow))

	return run, err
}

func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, plan Plan, run *models.Run, opts RunOptions) error {
	if !opts.SkipHousekeeping {
		started := p.now()
		// the mdf workflow fetches its own MDF
		err := p.housekeeping(ctx, plan.Workflow != MDFWorkflow)
		run.Steps = append(run.Steps, p.record(HousekeepingStep, HousekeepingStep, nil, started, nil, err))
		p.save(ctx, logger, run)
		if err != nil {
			return &RunError{Workflow: plan.Workflow, Step: HousekeepingStep, Err: err}
		}
	}

	st := &state{}
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return &RunError{Workflow: plan.Workflow, Step: step.Name, Err: err}
		}

		logger.DebugContext(ctx, "Running step", "step", step.Name)
		started := p.now()
		report, err := step.run(ctx, st)
		run.Steps = append(run.Steps, p.record(step.Name, step.Stage, step.Subjects, started, report, err))
		p.save(ctx, logger, run)

		if err != nil {
			return &RunError{Workflow: plan.Workflow, Step: step.Name, Err: err}
		}
	}

	return nil
}

func (p *Pipeline) record(name, stage string, subjects []string, started time.Time, report *executor.Report, err error) *models.StepRecord {
	rec := &models.StepRecord{
		Step:      name,
		Stage:     stage,
		Status:    models.StepStatusCompleted,
		Subjects:  subjects,
		StartedAt: started,
		Duration:  p.now().Sub(started),
	}
	if report != nil {
		rec.Duration = report.Duration
	}
	if err == nil {
		return rec
	}

	rec.Status = models.StepStatusFailed
	rec.Error = err.Error()

	var stageErr *executor.StageError
	if errors.As(err, &stageErr) {
		for _, f := range stageErr.Failures {
			rec.Failures = append(rec.Failures, models.SubjectFailure{Subject: f.Label(), Error: f.Err.Error()})
		}
	}
	return rec
}

// save writes the journal entry. Journal failures never stop a reduction.
func (p *Pipeline) save(ctx context.Context, logger *slog.Logger, run *models.Run) {
	if p.journal == nil {
		return
	}
	if err := p.journal.SaveRun(ctx, run); err != nil {
		logger.WarnContext(ctx, "Failed to record run", "error", err)
	}
}
