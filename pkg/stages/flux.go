package stages

import (
	"context"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/reference"
)

// FluxTable is the name of the standard-star flux table written next to
// the working artifacts.
func FluxTable(root string) string {
	return root + "std"
}

// RunSensitivity sums the apertures of the standard-star subjects and fits
// the sensitivity function from the first one. An existing function with
// the same root is replaced.
func (s *Stages) RunSensitivity(ctx context.Context, subjects []string, star config.StandardStar, fit config.Sensitivity) (*executor.Report, error) {
	ref, err := reference.First(artifact.RoleStandard, subjects)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, executor.Spec{
		Stage:    Sensitivity,
		Subjects: subjects,
		Clean: executor.Cleanup{
			Keys:  keys(subjects, artifact.ApertureSummed),
			Paths: []string{FluxTable(star.Root), s.store.SensitivityPath(star.Root)},
		},
		Batch: []executor.Step{
			executor.Invoke(engine.Call{
				Task: "gfapsum",
				Args: []string{artifact.List(subjects, artifact.SkySubtracted)},
				Params: engine.Params{
					Combine:  "sum",
					Interact: engine.No,
				},
			}),
			executor.Invoke(engine.Call{
				Task: "gsstandard",
				Args: []string{
					artifact.Compose(ref, artifact.ApertureSummed).Name(),
					FluxTable(star.Root),
					s.store.Sensitivity(star.Root),
				},
				Params: engine.Params{
					StarName:    star.Name,
					Observatory: s.site.Observatory,
					CalDir:      star.CalDir,
					Extinction:  star.Extinction,
					Interact:    engine.Bool(fit.Interactive),
					Function:    fit.Function,
					Order:       engine.Int(fit.Order),
				},
			}),
			executor.Local("check sensitivity function", func(context.Context) error {
				return reference.RequirePath(s.store, artifact.RoleStandard, star.Root+"sens", s.store.SensitivityPath(star.Root))
			}),
		},
		Produces: produces(artifact.ApertureSummed),
	})
}

// RunFluxCalibrate applies the sensitivity function of the standard star
// to each sky-subtracted subject.
func (s *Stages) RunFluxCalibrate(ctx context.Context, subjects []string, star config.StandardStar) (*executor.Report, error) {
	sens := s.store.Sensitivity(star.Root)

	return s.run(ctx, executor.Spec{
		Stage:    FluxCalibrate,
		Subjects: subjects,
		Require: func() error {
			return reference.RequirePath(s.store, artifact.RoleStandard, star.Root+"sens", s.store.SensitivityPath(star.Root))
		},
		Clean: executor.Cleanup{Keys: keys(subjects, artifact.FluxCalibrated)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gscalibrate",
				Args: []string{artifact.Compose(subject, artifact.SkySubtracted).Name()},
				Params: engine.Params{
					SFunction:   sens,
					Observatory: s.site.Observatory,
					Extinction:  star.Extinction,
					Extinct:     engine.Yes,
					VarDQ:       engine.Yes,
				},
			})}
		},
		Produces: produces(artifact.FluxCalibrated),
	})
}

// RunCube assembles the data cube of each flux-calibrated subject.
func (s *Stages) RunCube(ctx context.Context, subjects []string) (*executor.Report, error) {
	cubes := make([]artifact.Key, 0, len(subjects))
	for _, subject := range subjects {
		cubes = append(cubes, artifact.CubeOf(subject))
	}

	return s.run(ctx, executor.Spec{
		Stage:    Cube,
		Subjects: subjects,
		Clean:    executor.Cleanup{Keys: cubes},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gfcube",
				Args: []string{artifact.Compose(subject, artifact.FluxCalibrated).Name()},
				Params: engine.Params{
					OutImage: artifact.CubeOf(subject).Name(),
					AtmDisp:  engine.Yes,
					Var:      engine.Yes,
					DQ:       engine.Yes,
				},
			})}
		},
		Produces: func(subject string) []artifact.Key {
			return []artifact.Key{artifact.CubeOf(subject)}
		},
	})
}
