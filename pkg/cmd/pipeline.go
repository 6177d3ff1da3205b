package cmd

import (
	"log/slog"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/pipeline"
	"github.com/dukex/ifured/pkg/stages"
)

// PipelineOptions are the process settings that complete a run file.
type PipelineOptions struct {
	Engine  engine.Engine
	WorkDir string
	Display bool
	Journal persistence.Persistence
}

// NewPipeline wires the store, executor and stages for cfg. WorkDir, when
// set, overrides the configured working directory.
func NewPipeline(cfg *config.Config, opts PipelineOptions, logger *slog.Logger) *pipeline.Pipeline {
	layout := cfg.Layout
	if opts.WorkDir != "" {
		layout.WorkDir = opts.WorkDir
	}
	store := artifact.NewStore(layout)

	eng := opts.Engine
	exec := executor.New(eng, store, logger.With("component", "executor"))

	var disp display.Display = display.Disabled{}
	if opts.Display {
		disp = display.NewEngineDisplay(eng)
	}

	stg := stages.New(exec, disp, stages.Site{Observatory: cfg.Observatory, MDF: cfg.MDF}, logger.With("component", "stages"))

	return pipeline.New(cfg, stg, opts.Journal, logger.With("component", "pipeline"))
}

// NewEngine returns the command-line engine running in the layout's
// working directory.
func NewEngine(binary string, cfg *config.Config, workDir string, logger *slog.Logger) *engine.Command {
	dir := cfg.Layout.WorkDir
	if workDir != "" {
		dir = workDir
	}

	return engine.NewCommand(binary, dir, logger)
}
