package pipeline

import (
	"context"
	"fmt"

	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/reference"
	"github.com/dukex/ifured/pkg/stages"
)

// MDFWorkflow checks the MDF against the first flat of a target.
const MDFWorkflow = "mdf"

// Workflows lists every workflow a Plan can be built for.
var Workflows = []string{
	config.StandardStarWorkflow,
	config.CalibrationsWorkflow,
	config.ScienceWorkflow,
	MDFWorkflow,
}

// Step is one named entry of a plan. Names are unique within a plan; Stage
// is the executor stage the step runs, which may repeat.
type Step struct {
	Name     string
	Stage    string
	Subjects []string
	run      func(ctx context.Context, st *state) (*executor.Report, error)
}

// Plan is the ordered step list of a workflow.
type Plan struct {
	Workflow string
	Steps    []Step
}

func (p Plan) Names() []string {
	out := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		out = append(out, step.Name)
	}
	return out
}

// From returns the tail of the plan starting at the named step.
func (p Plan) From(name string) (Plan, error) {
	if name == "" {
		return p, nil
	}
	for i, step := range p.Steps {
		if step.Name == name {
			return Plan{Workflow: p.Workflow, Steps: p.Steps[i:]}, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %s is not a step of %s", ErrUnknownStep, name, p.Workflow)
}

// state carries values measured by one step and consumed by a later one.
type state struct {
	dw     float64
	haveDW bool
}

// PlanOptions tunes how a plan is built.
type PlanOptions struct {
	// Target selects the reference set for the mdf workflow: "standard-star"
	// or "science" (default).
	Target string
}

// Plan builds the step list of a workflow from the configuration.
func (p *Pipeline) Plan(workflow string, opts PlanOptions) (Plan, error) {
	switch workflow {
	case config.StandardStarWorkflow:
		return p.standardStarPlan()
	case config.CalibrationsWorkflow:
		return p.calibrationsPlan()
	case config.ScienceWorkflow:
		return p.sciencePlan()
	case MDFWorkflow:
		return p.mdfPlan(opts.Target)
	default:
		return Plan{}, fmt.Errorf("%w: %s", config.ErrUnknownWorkflow, workflow)
	}
}

func (p *Pipeline) target(workflow string) (config.Target, config.Profile, error) {
	target, err := p.cfg.TargetFor(workflow)
	if err != nil {
		return config.Target{}, config.Profile{}, err
	}
	profile, err := p.cfg.Profile(workflow)
	if err != nil {
		return config.Target{}, config.Profile{}, err
	}
	if len(target.FlatRefs) == 0 || len(target.ArcRefs) == 0 {
		return config.Target{}, config.Profile{}, fmt.Errorf("%w: %s has no flats or arcs", ErrEmptyTarget, workflow)
	}
	return target, profile, nil
}

func (p *Pipeline) standardStarPlan() (Plan, error) {
	target, profile, err := p.target(config.StandardStarWorkflow)
	if err != nil {
		return Plan{}, err
	}
	if len(target.Refs) == 0 {
		return Plan{}, fmt.Errorf("%w: standard-star", ErrEmptyTarget)
	}

	stg := p.stages.WithSlits(profile.Slits)
	steps := calibrationSteps(stg, target, profile)
	steps = append(steps, reductionSteps(stg, target, profile)...)
	steps = append(steps, Step{
		Name:     stages.Sensitivity,
		Stage:    stages.Sensitivity,
		Subjects: target.Refs,
		run: func(ctx context.Context, _ *state) (*executor.Report, error) {
			return stg.RunSensitivity(ctx, target.Refs, p.cfg.StandardStar, profile.Sensitivity)
		},
	})

	return Plan{Workflow: config.StandardStarWorkflow, Steps: steps}, nil
}

func (p *Pipeline) calibrationsPlan() (Plan, error) {
	target, profile, err := p.target(config.CalibrationsWorkflow)
	if err != nil {
		return Plan{}, err
	}

	stg := p.stages.WithSlits(profile.Slits)
	return Plan{Workflow: config.CalibrationsWorkflow, Steps: calibrationSteps(stg, target, profile)}, nil
}

func (p *Pipeline) sciencePlan() (Plan, error) {
	target, profile, err := p.target(config.ScienceWorkflow)
	if err != nil {
		return Plan{}, err
	}
	if len(target.Refs) == 0 {
		return Plan{}, fmt.Errorf("%w: science", ErrEmptyTarget)
	}

	var steps []Step
	if profile.RunCalibrations {
		calibrations, err := p.calibrationsPlan()
		if err != nil {
			return Plan{}, err
		}
		steps = append(steps, calibrations.Steps...)
	}

	stg := p.stages.WithSlits(profile.Slits)
	steps = append(steps, reductionSteps(stg, target, profile)...)
	steps = append(steps,
		Step{
			Name:     stages.FluxCalibrate,
			Stage:    stages.FluxCalibrate,
			Subjects: target.Refs,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunFluxCalibrate(ctx, target.Refs, p.cfg.StandardStar)
			},
		},
		Step{
			Name:     stages.Cube,
			Stage:    stages.Cube,
			Subjects: target.Refs,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunCube(ctx, target.Refs)
			},
		},
	)

	return Plan{Workflow: config.ScienceWorkflow, Steps: steps}, nil
}

func (p *Pipeline) mdfPlan(targetName string) (Plan, error) {
	workflow := config.ScienceWorkflow
	if targetName == config.StandardStarWorkflow {
		workflow = config.StandardStarWorkflow
	}
	target, profile, err := p.target(workflow)
	if err != nil {
		return Plan{}, err
	}

	stg := p.stages.WithSlits(profile.Slits)
	flat := target.FlatRefs[:1]

	return Plan{Workflow: MDFWorkflow, Steps: []Step{
		{
			Name:  "fetch-mdf",
			Stage: stages.CreateMDF,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return nil, stg.FetchMDF(ctx)
			},
		},
		{
			Name:     stages.TraceReference,
			Stage:    stages.TraceReference,
			Subjects: flat,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunTraceReference(ctx, flat)
			},
		},
		{
			Name:     stages.CreateMDF,
			Stage:    stages.CreateMDF,
			Subjects: flat,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunCreateMDF(ctx, flat)
			},
		},
	}}, nil
}

// calibrationSteps reduce the flats and arcs of a target down to the
// response function.
func calibrationSteps(stg *stages.Stages, target config.Target, profile config.Profile) []Step {
	flats, arcs := target.FlatRefs, target.ArcRefs

	steps := []Step{
		{
			Name:     stages.TraceReference,
			Stage:    stages.TraceReference,
			Subjects: flats,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunTraceReference(ctx, flats)
			},
		},
		{
			Name:     stages.Wavelength,
			Stage:    stages.Wavelength,
			Subjects: arcs,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunWavelength(ctx, arcs, flats, profile.Wavelength)
			},
		},
		{
			Name:     stages.GapMask,
			Stage:    stages.GapMask,
			Subjects: flats,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunGapMask(ctx, flats)
			},
		},
		{
			Name:     "flat-" + stages.Scatter,
			Stage:    stages.Scatter,
			Subjects: flats,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunScatter(ctx, flats, stages.ScatterOptions{
					Gaps:        reference.DefaultToFirstSubject(),
					Orders:      profile.FlatScatter,
					Interactive: profile.InteractiveScatter,
				})
			},
		},
	}
	if profile.Show.Flats {
		steps = append(steps, viewStep(stages.ViewFlats, flats, stg.ShowFlats))
	}

	steps = append(steps, Step{
		Name:     stages.QECorrect,
		Stage:    stages.QECorrect,
		Subjects: flats,
		run: func(ctx context.Context, _ *state) (*executor.Report, error) {
			return stg.RunQECorrect(ctx, flats, arcs)
		},
	})
	if profile.Show.QE {
		steps = append(steps, viewStep(stages.ViewQE, flats, stg.ShowQE))
	}

	steps = append(steps, Step{
		Name:     stages.Response,
		Stage:    stages.Response,
		Subjects: flats,
		run: func(ctx context.Context, _ *state) (*executor.Report, error) {
			return stg.RunResponse(ctx, flats, profile.Response)
		},
	})
	if profile.Show.Response {
		steps = append(steps, viewStep(stages.ViewResponse, flats, stg.ShowResponse))
	}

	return steps
}

// reductionSteps take the subjects of a target from raw to sky subtracted.
func reductionSteps(stg *stages.Stages, target config.Target, profile config.Profile) []Step {
	subjects, flats, arcs := target.Refs, target.FlatRefs, target.ArcRefs

	gaps := target.GapSolution
	if gaps == "" {
		gaps = flats[0]
	}

	steps := []Step{
		{
			Name:     stages.ScienceTrace,
			Stage:    stages.ScienceTrace,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunScienceTrace(ctx, subjects, flats, stages.TraceOptions{
					Extract: profile.ExtractScience,
					BPM:     target.BPM,
				})
			},
		},
		{
			Name:     stages.Scatter,
			Stage:    stages.Scatter,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunScatter(ctx, subjects, stages.ScatterOptions{
					Gaps:        reference.Explicit(gaps),
					Orders:      profile.SubjectScatter,
					Interactive: profile.InteractiveScatter,
				})
			},
		},
	}
	if profile.Show.Scatter {
		steps = append(steps, viewStep(stages.ViewScatter, subjects, stg.ShowScatter))
	}

	steps = append(steps,
		Step{
			Name:     stages.CosmicRays,
			Stage:    stages.CosmicRays,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunCosmicRays(ctx, subjects, profile.CosmicRays)
			},
		},
		Step{
			Name:     stages.ScienceQE,
			Stage:    stages.ScienceQE,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunScienceQE(ctx, subjects, arcs, flats)
			},
		},
	)

	if profile.Alias == config.AliasBadColumns && target.BadColumns != nil {
		bad := *target.BadColumns
		steps = append(steps, Step{
			Name:     stages.BadColumns,
			Stage:    stages.BadColumns,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunBadColumns(ctx, subjects, bad)
			},
		})
	} else {
		steps = append(steps, Step{
			Name:     stages.CarryForward,
			Stage:    stages.CarryForward,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunCarryForward(ctx, subjects)
			},
		})
	}

	measure := func(ctx context.Context, st *state) error {
		dw, err := stg.RunDispersion(ctx, subjects, arcs)
		if err != nil {
			return err
		}
		st.dw, st.haveDW = dw, true
		return nil
	}

	steps = append(steps,
		Step{
			Name:     stages.Dispersion,
			Stage:    stages.Dispersion,
			Subjects: subjects[:1],
			run: func(ctx context.Context, st *state) (*executor.Report, error) {
				return nil, measure(ctx, st)
			},
		},
		Step{
			Name:     stages.Rectify,
			Stage:    stages.Rectify,
			Subjects: subjects,
			run: func(ctx context.Context, st *state) (*executor.Report, error) {
				// resuming at rectify has no measured dispersion yet
				if !st.haveDW {
					if err := measure(ctx, st); err != nil {
						return nil, err
					}
				}
				return stg.RunRectify(ctx, subjects, arcs, st.dw)
			},
		},
		Step{
			Name:     stages.Sky,
			Stage:    stages.Sky,
			Subjects: subjects,
			run: func(ctx context.Context, _ *state) (*executor.Report, error) {
				return stg.RunSky(ctx, subjects)
			},
		},
	)

	return steps
}

func viewStep(name string, subjects []string, show func(context.Context, []string) []display.Result) Step {
	return Step{
		Name:     name,
		Stage:    name,
		Subjects: subjects,
		run: func(ctx context.Context, _ *state) (*executor.Report, error) {
			show(ctx, subjects)
			return nil, nil
		},
	}
}
