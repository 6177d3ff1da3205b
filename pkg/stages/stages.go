// Package stages implements each reduction stage as a policy over the
// executor: which artifacts it consumes, which it produces and how the
// engine task is parameterised.
package stages

import (
	"context"
	"log/slog"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/executor"
)

// Stage identifiers, used in plans, logs and the run journal.
const (
	BiasCombine    = "bias-combine"
	CreateMDF      = "create-mdf"
	TraceReference = "trace-reference"
	ScienceTrace   = "science-trace"
	Wavelength     = "wavelength"
	GapMask        = "gap-mask"
	Scatter        = "scatter"
	QECorrect      = "qe-correct"
	Response       = "response"
	CosmicRays     = "cosmic-rays"
	ScienceQE      = "science-qe"
	CarryForward   = "carry-forward"
	BadColumns     = "bad-columns"
	Dispersion     = "dispersion"
	Rectify        = "rectify"
	Sky            = "sky"
	Sensitivity    = "sensitivity"
	FluxCalibrate  = "flux-calibrate"
	Cube           = "cube"

	ViewFlats    = "view-flats"
	ViewScatter  = "view-scatter"
	ViewQE       = "view-qe"
	ViewResponse = "view-response"
)

// Site holds the run-wide settings every stage shares.
type Site struct {
	Observatory string
	MDF         string
	Slits       string
}

// Stages runs reduction stages against one working directory.
type Stages struct {
	exec    *executor.Executor
	store   *artifact.Store
	engine  engine.Engine
	display display.Display
	site    Site
	logger  *slog.Logger
}

func New(exec *executor.Executor, disp display.Display, site Site, logger *slog.Logger) *Stages {
	if disp == nil {
		disp = display.Disabled{}
	}
	if site.Slits == "" {
		site.Slits = "red"
	}
	return &Stages{
		exec:    exec,
		store:   exec.Store(),
		engine:  exec.Engine(),
		display: disp,
		site:    site,
		logger:  logger,
	}
}

func (s *Stages) Store() *artifact.Store {
	return s.store
}

// WithSlits returns a copy that reduces with another slit selection.
func (s *Stages) WithSlits(slits string) *Stages {
	next := *s
	if slits != "" {
		next.site.Slits = slits
	}
	return &next
}

func (s *Stages) run(ctx context.Context, spec executor.Spec) (*executor.Report, error) {
	return s.exec.Run(ctx, spec)
}

// reduceParams are the gfreduce options shared by every reduction call:
// the MDF, the slit selection, and every optional correction switched off.
func (s *Stages) reduceParams() engine.Params {
	return engine.Params{
		MDFFile:  s.site.MDF,
		MDFDir:   "./",
		Slits:    s.site.Slits,
		FluxCal:  engine.No,
		CRReject: engine.No,
		WavTrans: engine.No,
		SkySub:   engine.No,
		Interact: engine.No,
	}
}

func produces(chain artifact.Chain) func(string) []artifact.Key {
	return func(subject string) []artifact.Key {
		return []artifact.Key{artifact.Compose(subject, chain)}
	}
}

func keys(subjects []string, chains ...artifact.Chain) []artifact.Key {
	var out []artifact.Key
	for _, chain := range chains {
		out = append(out, artifact.Keys(subjects, chain)...)
	}
	return out
}
