package stages

import (
	"context"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/reference"
)

// RunBiasCombine combines the bias frames into the master bias and copies
// it to the calibrations directory.
func (s *Stages) RunBiasCombine(ctx context.Context, biases []string) (*executor.Report, error) {
	local := artifact.MasterBiasName + artifact.Extension

	return s.run(ctx, executor.Spec{
		Stage:    BiasCombine,
		Subjects: biases,
		Clean:    executor.Cleanup{Paths: []string{local, s.store.MasterBiasPath()}},
		Batch: []executor.Step{
			executor.Invoke(engine.Call{
				Task: "gbias",
				Args: []string{artifact.List(biases, artifact.Raw), artifact.MasterBiasName},
				Params: engine.Params{
					RawPath: s.store.BiasDir(),
					VarDQ:   engine.Yes,
				},
			}),
			executor.Local("install master bias", func(context.Context) error {
				return s.store.CopyFile(local, s.store.MasterBiasPath())
			}),
		},
	})
}

// RunCreateMDF extracts the first flat interactively to check the fibre
// mapping of the MDF. The MDF is fetched from the engine's data directory
// when missing. Expects trace-reference to have run on the flat.
func (s *Stages) RunCreateMDF(ctx context.Context, flats []string) (*executor.Report, error) {
	flat, err := reference.First(artifact.RoleFlat, flats)
	if err != nil {
		return nil, err
	}

	var steps []executor.Step
	if !s.store.ExistsPath(s.site.MDF) {
		steps = append(steps, executor.Invoke(s.fetchMDFCall()))
	}
	steps = append(steps, executor.Invoke(engine.Call{
		Task:   "gfextract",
		Args:   []string{artifact.Compose(flat, artifact.Reduced).Name()},
		Params: engine.Params{Interact: engine.Yes},
	}))

	return s.run(ctx, executor.Spec{
		Stage:    CreateMDF,
		Subjects: []string{flat},
		Require: func() error {
			return reference.Require(s.store, artifact.RoleFlat, artifact.Compose(flat, artifact.Reduced))
		},
		Clean:    executor.Cleanup{Keys: []artifact.Key{artifact.Compose(flat, artifact.Extracted)}},
		Batch:    steps,
		Produces: produces(artifact.Extracted),
	})
}

// FetchMDF copies the MDF from the engine's data directory unless the
// working directory already has one.
func (s *Stages) FetchMDF(ctx context.Context) error {
	if s.store.ExistsPath(s.site.MDF) {
		return nil
	}
	s.logger.InfoContext(ctx, "Fetching MDF", "mdf", s.site.MDF)
	return s.engine.Invoke(ctx, s.fetchMDFCall())
}

func (s *Stages) fetchMDFCall() engine.Call {
	return engine.Call{
		Task:   "copy",
		Args:   []string{"gmos$data/" + s.site.MDF, "."},
		Params: engine.Params{Verbose: engine.No},
	}
}

// RunTraceReference reduces and extracts the raw flats. The extracted flats
// are the spatial reference for every later extraction.
func (s *Stages) RunTraceReference(ctx context.Context, flats []string) (*executor.Report, error) {
	params := s.reduceParams()
	params.RawPath = s.store.RawDir()
	params.Extract = engine.Yes
	params.Bias = s.store.MasterBias()
	params.Overscan = engine.Yes
	params.Trim = engine.Yes
	params.VarDQ = engine.Yes

	return s.run(ctx, executor.Spec{
		Stage:    TraceReference,
		Subjects: flats,
		Require:  s.requireBiasAndMDF,
		Clean:    executor.Cleanup{Keys: keys(flats, artifact.Prepared, artifact.Reduced, artifact.Extracted)},
		Batch: []executor.Step{executor.Invoke(engine.Call{
			Task:   "gfreduce",
			Args:   []string{artifact.List(flats, artifact.Raw)},
			Params: params,
		})},
		Produces: produces(artifact.Extracted),
	})
}

// RunWavelength extracts the arcs against the extracted flats and fits the
// wavelength solution against the line list.
func (s *Stages) RunWavelength(ctx context.Context, arcs, flats []string, fit config.Wavelength) (*executor.Report, error) {
	reduce := s.reduceParams()
	reduce.RawPath = s.store.RawDir()
	reduce.Extract = engine.Yes
	reduce.Recenter = engine.No
	reduce.Trace = engine.No
	reduce.Reference = artifact.List(flats, artifact.Extracted)
	reduce.FlBias = engine.No
	reduce.Overscan = engine.Yes
	reduce.Trim = engine.Yes

	return s.run(ctx, executor.Spec{
		Stage:    Wavelength,
		Subjects: arcs,
		Require: func() error {
			if err := s.requireMDF(); err != nil {
				return err
			}
			return reference.Require(s.store, artifact.RoleFlat, artifact.Keys(flats, artifact.Extracted)...)
		},
		Clean: executor.Cleanup{Keys: keys(arcs, artifact.Prepared, artifact.Reduced, artifact.Extracted)},
		Batch: []executor.Step{
			executor.Invoke(engine.Call{
				Task:   "gfreduce",
				Args:   []string{artifact.List(arcs, artifact.Raw)},
				Params: reduce,
			}),
			executor.Invoke(engine.Call{
				Task: "gswavelength",
				Args: []string{artifact.List(arcs, artifact.Extracted)},
				Params: engine.Params{
					NLost:     engine.Int(fit.NLost),
					NTarget:   engine.Int(fit.NTarget),
					Threshold: engine.Float(fit.Threshold),
					CoordList: fit.CoordList,
					Interact:  engine.Bool(fit.Interactive),
				},
			}),
		},
		Produces: produces(artifact.Extracted),
	})
}

// RunGapMask finds the fibre-bundle gaps of each flat.
func (s *Stages) RunGapMask(ctx context.Context, flats []string) (*executor.Report, error) {
	masks := make([]artifact.Key, 0, len(flats))
	for _, flat := range flats {
		masks = append(masks, artifact.BlockMaskOf(flat))
	}

	return s.run(ctx, executor.Spec{
		Stage:    GapMask,
		Subjects: flats,
		Clean:    executor.Cleanup{Keys: masks},
		Each: func(flat string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gffindblocks",
				Args: []string{
					artifact.Compose(flat, artifact.Reduced).Name(),
					artifact.Compose(flat, artifact.Extracted).Name(),
					artifact.BlockMaskOf(flat).Name(),
				},
			})}
		},
		Produces: func(flat string) []artifact.Key {
			return []artifact.Key{artifact.BlockMaskOf(flat)}
		},
	})
}

// ScatterOptions tunes one scatter-removal pass.
type ScatterOptions struct {
	Gaps        reference.Reference
	Orders      config.Orders
	Interactive bool
}

// RunScatter removes scattered light from the reduced subjects using one
// block mask for the whole batch.
func (s *Stages) RunScatter(ctx context.Context, subjects []string, opts ScatterOptions) (*executor.Report, error) {
	gaps, err := reference.Resolve(artifact.RoleGaps, opts.Gaps, subjects)
	if err != nil {
		return nil, err
	}
	mask := artifact.BlockMaskOf(gaps)

	s.logger.DebugContext(ctx, "Resolved gap solution", "reference", opts.Gaps.String(), "mask", mask.Name())

	return s.run(ctx, executor.Spec{
		Stage:    Scatter,
		Subjects: subjects,
		Require: func() error {
			return reference.Require(s.store, artifact.RoleGaps, mask)
		},
		Clean: executor.Cleanup{Keys: keys(subjects, artifact.ScatterRemoved)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gfscatsub",
				Args: []string{artifact.Compose(subject, artifact.Reduced).Name(), mask.Name()},
				Params: engine.Params{
					Prefix:   artifact.TagScatter.String(),
					XOrder:   opts.Orders.XString(),
					YOrder:   opts.Orders.YString(),
					Cross:    engine.Yes,
					Interact: engine.Bool(opts.Interactive),
				},
			})}
		},
		Produces: produces(artifact.ScatterRemoved),
	})
}

// RunQECorrect corrects the flats for quantum efficiency against the first
// arc and re-extracts them.
func (s *Stages) RunQECorrect(ctx context.Context, flats, arcs []string) (*executor.Report, error) {
	arc, err := reference.First(artifact.RoleArc, arcs)
	if err != nil {
		return nil, err
	}
	arcKey := artifact.Compose(arc, artifact.Extracted)

	params := s.reduceParams()
	params.Extract = engine.Yes
	params.QECorr = engine.Yes
	params.QERefIm = arcKey.Name()
	params.AddMDF = engine.No
	params.FlBias = engine.No
	params.Overscan = engine.No
	params.Trim = engine.No
	params.VarDQ = engine.Yes

	return s.run(ctx, executor.Spec{
		Stage:    QECorrect,
		Subjects: flats,
		Require: func() error {
			return reference.Require(s.store, artifact.RoleArc, arcKey)
		},
		Clean: executor.Cleanup{Keys: keys(flats, artifact.QECorrected, artifact.FlatExtracted)},
		Batch: []executor.Step{executor.Invoke(engine.Call{
			Task:   "gfreduce",
			Args:   []string{artifact.List(flats, artifact.ScatterRemoved)},
			Params: params,
		})},
		Produces: produces(artifact.FlatExtracted),
	})
}

// RunResponse fits the response function of each QE-corrected flat.
func (s *Stages) RunResponse(ctx context.Context, flats []string, fit config.Response) (*executor.Report, error) {
	noSky := ""
	responses := make([]artifact.Key, 0, len(flats))
	for _, flat := range flats {
		responses = append(responses, artifact.ResponseOf(flat))
	}

	return s.run(ctx, executor.Spec{
		Stage:    Response,
		Subjects: flats,
		Clean:    executor.Cleanup{Keys: responses},
		Each: func(flat string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gfresponse",
				Args: []string{artifact.Compose(flat, artifact.FlatExtracted).Name()},
				Params: engine.Params{
					OutImage: artifact.ResponseOf(flat).Name(),
					Sky:      &noSky,
					Order:    engine.Int(fit.Order),
					Function: fit.Function,
					Sample:   fit.Sample,
					Fit:      engine.Yes,
					Interact: engine.Bool(fit.Interactive),
				},
			})}
		},
		Produces: func(flat string) []artifact.Key {
			return []artifact.Key{artifact.ResponseOf(flat)}
		},
	})
}

func (s *Stages) requireMDF() error {
	return reference.RequirePath(s.store, artifact.RoleFlat, "mdf", s.site.MDF)
}

func (s *Stages) requireBiasAndMDF() error {
	if err := reference.RequirePath(s.store, artifact.RoleBias, "master bias", s.store.MasterBiasPath()); err != nil {
		return err
	}
	return s.requireMDF()
}
