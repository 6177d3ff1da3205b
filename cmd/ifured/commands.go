package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dukex/ifured/pkg/cmd"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/log"
	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/pipeline"
	"github.com/dukex/ifured/pkg/web"
	cli "github.com/urfave/cli/v3"
)

func HousekeepingCommand() *cli.Command {
	return &cli.Command{
		Name:  "housekeeping",
		Usage: "Clear temporary files, create the master bias and install the MDF when missing",
		Action: func(ctx context.Context, command *cli.Command) error {
			s, closeAll, err := open(ctx, command, false)
			if err != nil {
				return err
			}
			defer closeAll()

			return s.pipeline.Housekeeping(ctx)
		},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "from",
			Usage: "Resume the workflow at this step",
		},
		&cli.BoolFlag{
			Name:  "skip-housekeeping",
			Usage: "Start directly with the first step",
		},
	}
}

func WorkflowCommand(workflow, usage string) *cli.Command {
	return &cli.Command{
		Name:  workflow,
		Usage: usage,
		Flags: runFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			return runWorkflow(ctx, command, workflow, pipeline.PlanOptions{})
		},
	}
}

func MDFCommand() *cli.Command {
	flags := append(runFlags(), &cli.StringFlag{
		Name:  "target",
		Usage: "Target whose first flat checks the MDF (science, standard-star)",
		Value: config.ScienceWorkflow,
	})

	return &cli.Command{
		Name:  "mdf",
		Usage: "Fetch the MDF and check it interactively against the first flat",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			return runWorkflow(ctx, command, pipeline.MDFWorkflow, pipeline.PlanOptions{Target: command.String("target")})
		},
	}
}

func runWorkflow(ctx context.Context, command *cli.Command, workflow string, planOpts pipeline.PlanOptions) error {
	s, closeAll, err := open(ctx, command, true)
	if err != nil {
		return err
	}
	defer closeAll()

	run, err := s.pipeline.Run(ctx, workflow, pipeline.RunOptions{
		PlanOptions:      planOpts,
		FromStep:         command.String("from"),
		SkipHousekeeping: command.Bool("skip-housekeeping"),
		ConfigPath:       command.String("config"),
	})
	if run != nil {
		fmt.Fprintf(command.Root().Writer, "run %s %s\n", run.ID, run.Status)
	}

	return err
}

func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Print the steps of a workflow",
		ArgsUsage: "<workflow>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "Target of the mdf workflow",
				Value: config.ScienceWorkflow,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflow := command.Args().First()
			if workflow == "" {
				return fmt.Errorf("missing workflow, one of: %s", strings.Join(pipeline.Workflows, ", "))
			}

			s, closeAll, err := open(ctx, command, false)
			if err != nil {
				return err
			}
			defer closeAll()

			plan, err := s.pipeline.Plan(workflow, pipeline.PlanOptions{Target: command.String("target")})
			if err != nil {
				return err
			}

			out := command.Root().Writer
			for i, step := range plan.Steps {
				fmt.Fprintf(out, "%2d  %-16s %s\n", i+1, step.Name, strings.Join(step.Subjects, ","))
			}

			return nil
		},
	}
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the run configuration and print it with defaults applied",
		Action: func(_ context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}

			_, err = command.Root().Writer.Write(data)

			return err
		},
	}
}

func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:      "runs",
		Usage:     "List recorded runs, or show one with its id",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "Only list runs of this workflow",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			journal, err := cmd.NewPersistence(command.String("journal"))
			if err != nil {
				return err
			}
			defer func() {
				_ = journal.Close(ctx)
			}()

			out := command.Root().Writer

			if id := command.Args().First(); id != "" {
				run, err := journal.RunByID(ctx, id)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(run)
			}

			runs, err := journal.Runs(ctx, persistence.ListRunsOptions{
				Workflow: command.String("workflow"),
				Limit:    command.Int("limit"),
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tSTARTED\tLAST STEP")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", run.ID, run.Workflow, run.Status, run.StartedAt.Format(time.RFC3339), lastStep(run))
			}

			return w.Flush()
		},
	}
}

func lastStep(run *models.Run) string {
	step := run.LastStep()
	if step == nil {
		return "-"
	}
	return step.Step
}

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the run journal over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to serve the journal API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("api")

			journal, err := cmd.NewPersistence(command.String("journal"))
			if err != nil {
				return err
			}
			defer func() {
				if err := journal.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close journal", "error", err)
				}
			}()

			return web.NewServer(logger, journal).Start(command.Int("port"))
		},
	}
}
