package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/ifured/pkg/cmd"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/log"
	"github.com/dukex/ifured/pkg/otelhelper"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/pipeline"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultEngine  = "ifured-engine"
	defaultJournal = ".ifured"
	defaultPort    = 9092
)

func NewApp() *cli.Command {
	return &cli.Command{
		Name:                  "ifured",
		Usage:                 "Reduce IFU spectroscopy from raw exposures to flux-calibrated cubes",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML run configuration",
				Value:   "ifured.yaml",
				Sources: cli.EnvVars("IFURED_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "work-dir",
				Usage:   "Working directory, overriding the configured layout",
				Sources: cli.EnvVars("IFURED_WORK_DIR"),
			},
			&cli.StringFlag{
				Name:    "engine",
				Usage:   "Task-runner executable of the reduction engine",
				Value:   defaultEngine,
				Sources: cli.EnvVars("IFURED_ENGINE"),
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "Run journal location (path or file:// URL)",
				Value:   defaultJournal,
				Sources: cli.EnvVars("IFURED_JOURNAL"),
			},
			&cli.BoolFlag{
				Name:    "display",
				Usage:   "Forward display steps to the engine",
				Sources: cli.EnvVars("IFURED_DISPLAY"),
			},
			&cli.BoolFlag{
				Name:    "trace",
				Usage:   "Export OpenTelemetry spans over OTLP/HTTP",
				Sources: cli.EnvVars("IFURED_TRACE"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample",
				Usage:   "Fraction of runs to trace; 0 or 1 traces every run",
				Value:   1,
				Sources: cli.EnvVars("IFURED_TRACE_SAMPLE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			HousekeepingCommand(),
			WorkflowCommand(config.StandardStarWorkflow, "Reduce the standard star down to its sensitivity function"),
			WorkflowCommand(config.CalibrationsWorkflow, "Reduce the science flats and arcs down to the response function"),
			WorkflowCommand(config.ScienceWorkflow, "Reduce the science observations down to flux-calibrated cubes"),
			MDFCommand(),
			PlanCommand(),
			ValidateCommand(),
			RunsCommand(),
			ServeCommand(),
		},
	}
}

// session holds what a command needs once the run file is loaded.
type session struct {
	cfg      *config.Config
	journal  persistence.Persistence
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// open loads the run file and wires the pipeline. withJournal also opens
// the run journal.
func open(ctx context.Context, command *cli.Command, withJournal bool) (*session, func(), error) {
	logger := log.WithModule("ifured")

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if command.Bool("trace") {
		tp, err := otelhelper.NewTracerProvider(ctx, otelhelper.ProviderOptions{
			ServiceName: "ifured",
			Observatory: cfg.Observatory,
			WorkDir:     command.String("work-dir"),
			SampleRatio: command.Float("trace-sample"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		closers = append(closers, func() {
			if err := tp.Shutdown(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		})
	}

	var journal persistence.Persistence
	if withJournal {
		journal, err = cmd.NewPersistence(command.String("journal"))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := journal.Close(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to close journal", "error", err)
			}
		})
	}

	workDir := command.String("work-dir")
	eng := cmd.NewEngine(command.String("engine"), cfg, workDir, log.WithModule("engine"))
	p := cmd.NewPipeline(cfg, cmd.PipelineOptions{
		Engine:  eng,
		WorkDir: workDir,
		Display: command.Bool("display"),
		Journal: journal,
	}, logger)

	return &session{cfg: cfg, journal: journal, pipeline: p, logger: logger}, closeAll, nil
}
