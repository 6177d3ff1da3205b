package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/reference"
)

const (
	badColumnList = "maskbadcol.txt"
	badColumnMask = "maskbadcol.pl"
)

// TraceOptions selects the science trace variant.
type TraceOptions struct {
	// Extract also extracts the subjects; otherwise they are only reduced.
	Extract bool
	BPM     string
}

// RunScienceTrace reduces the raw science subjects, tracing them against
// the first extracted flat.
func (s *Stages) RunScienceTrace(ctx context.Context, subjects, flats []string, opts TraceOptions) (*executor.Report, error) {
	flat, err := reference.First(artifact.RoleFlat, flats)
	if err != nil {
		return nil, err
	}
	flatKey := artifact.Compose(flat, artifact.Extracted)

	params := s.reduceParams()
	params.RawPath = s.store.RawDir()
	params.Extract = engine.Bool(opts.Extract)
	params.Reference = flatKey.Name()
	params.Recenter = engine.No
	params.Trace = engine.No
	params.Bias = s.store.MasterBias()
	params.Overscan = engine.Yes
	params.Trim = engine.Yes
	params.BPM = opts.BPM
	params.VarDQ = engine.Yes

	out := artifact.Reduced
	if opts.Extract {
		out = artifact.Extracted
	}

	return s.run(ctx, executor.Spec{
		Stage:    ScienceTrace,
		Subjects: subjects,
		Require: func() error {
			if err := s.requireBiasAndMDF(); err != nil {
				return err
			}
			return reference.Require(s.store, artifact.RoleFlat, flatKey)
		},
		Clean: executor.Cleanup{Keys: keys(subjects, artifact.Prepared, artifact.Reduced, artifact.Extracted)},
		Batch: []executor.Step{executor.Invoke(engine.Call{
			Task:   "gfreduce",
			Args:   []string{artifact.List(subjects, artifact.Raw)},
			Params: params,
		})},
		Produces: produces(out),
	})
}

// RunCosmicRays cleans cosmic rays from each scatter-removed subject. It
// only consumes the brg generation, so it can be retried on its own.
func (s *Stages) RunCosmicRays(ctx context.Context, subjects []string, cr config.CosmicRays) (*executor.Report, error) {
	return s.run(ctx, executor.Spec{
		Stage:    CosmicRays,
		Subjects: subjects,
		Clean:    executor.Cleanup{Keys: keys(subjects, artifact.CRCleaned)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gemcrspec",
				Args: []string{
					artifact.Compose(subject, artifact.ScatterRemoved).Name(),
					artifact.Compose(subject, artifact.CRCleaned).Name(),
				},
				Params: engine.Params{
					LogFile: cr.LogFile,
					KeyGain: cr.KeyGain,
					KeyRON:  cr.KeyRON,
					XOrder:  strconv.Itoa(cr.XOrder),
					YOrder:  strconv.Itoa(cr.YOrder),
					SigClip: engine.Float(cr.SigClip),
					SigFrac: engine.Float(cr.SigFrac),
					ObjLim:  engine.Float(cr.ObjLim),
					NIter:   engine.Int(cr.NIter),
					Verbose: engine.Yes,
					VarDQ:   engine.Yes,
				},
			})}
		},
		Produces: produces(artifact.CRCleaned),
	})
}

// RunScienceQE corrects each subject for quantum efficiency and re-extracts
// it with the first flat's response. Only the first arc and flat are used.
func (s *Stages) RunScienceQE(ctx context.Context, subjects, arcs, flats []string) (*executor.Report, error) {
	arc, err := reference.First(artifact.RoleArc, arcs)
	if err != nil {
		return nil, err
	}
	flat, err := reference.First(artifact.RoleFlat, flats)
	if err != nil {
		return nil, err
	}

	arcKey := artifact.Compose(arc, artifact.Extracted)
	response := artifact.ResponseOf(flat)
	refFlat := artifact.Compose(flat, artifact.FlatExtracted)

	return s.run(ctx, executor.Spec{
		Stage:    ScienceQE,
		Subjects: subjects,
		Require: func() error {
			if err := reference.Require(s.store, artifact.RoleArc, arcKey); err != nil {
				return err
			}
			return reference.Require(s.store, artifact.RoleFlat, response, refFlat)
		},
		Clean: executor.Cleanup{Keys: keys(subjects, artifact.SciQECorrected, artifact.SciExtracted)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{
				executor.Invoke(engine.Call{
					Task: "gqecorr",
					Args: []string{artifact.Compose(subject, artifact.CRCleaned).Name()},
					Params: engine.Params{
						RefImage: arcKey.Name(),
						Correct:  engine.Yes,
						VarDQ:    engine.Yes,
						Verbose:  engine.Yes,
					},
				}),
				executor.Invoke(engine.Call{
					Task: "gfextract",
					Args: []string{artifact.Compose(subject, artifact.SciQECorrected).Name()},
					Params: engine.Params{
						Response:  response.Name(),
						Recenter:  engine.No,
						Trace:     engine.No,
						Reference: refFlat.Name(),
						Weights:   "none",
						VarDQ:     engine.Yes,
					},
				}),
			}
		},
		Produces: produces(artifact.SciExtracted),
	})
}

// RunCarryForward copies eqxbrg to xeqxbrg so the rectification stage finds
// its expected input without recomputing anything.
func (s *Stages) RunCarryForward(ctx context.Context, subjects []string) (*executor.Report, error) {
	return s.run(ctx, executor.Spec{
		Stage:    CarryForward,
		Subjects: subjects,
		Clean:    executor.Cleanup{Keys: keys(subjects, artifact.CarriedForward)},
		Each: func(subject string) []executor.Step {
			src := artifact.Compose(subject, artifact.SciExtracted)
			return []executor.Step{executor.Local("copy "+src.Name(), func(context.Context) error {
				return s.store.Copy(src, src.Push(artifact.TagCosmicRay))
			})}
		},
		Produces: produces(artifact.CarriedForward),
	})
}

// RunBadColumns produces xeqxbrg by interpolating over known bad detector
// columns and flagging them in the data-quality plane.
func (s *Stages) RunBadColumns(ctx context.Context, subjects []string, bad config.BadColumns) (*executor.Report, error) {
	var list strings.Builder
	for _, col := range bad.Columns {
		fmt.Fprintf(&list, "%d\n", col)
	}

	return s.run(ctx, executor.Spec{
		Stage:    BadColumns,
		Subjects: subjects,
		Clean: executor.Cleanup{
			Keys:  keys(subjects, artifact.CarriedForward),
			Paths: []string{badColumnList, badColumnMask},
		},
		Setup: []executor.Step{
			executor.Local("write "+badColumnList, func(context.Context) error {
				return s.store.WriteFile(badColumnList, []byte(list.String()))
			}),
			executor.Invoke(engine.Call{
				Task: "text2mask",
				Args: []string{badColumnList, badColumnMask, strconv.Itoa(bad.Width), strconv.Itoa(bad.Height)},
			}),
		},
		Each: func(subject string) []executor.Step {
			src := artifact.Compose(subject, artifact.SciExtracted)
			dst := artifact.Compose(subject, artifact.CarriedForward)
			tmp := "tmp" + subject + artifact.Extension
			tmpDQ := "tmpdq" + subject

			return []executor.Step{
				executor.Local("stage "+tmp, func(context.Context) error {
					return s.store.CopyFile(src.FileName(), tmp)
				}),
				executor.Invoke(engine.Call{
					Task:   "fixpix",
					Args:   []string{tmp + "[sci,1]", badColumnMask},
					Params: engine.Params{Linterp: "1,2,3,4"},
				}),
				executor.Local("install "+dst.Name(), func(context.Context) error {
					return s.store.CopyFile(tmp, dst.FileName())
				}),
				executor.Invoke(engine.Call{
					Task: "imarith",
					Args: []string{badColumnMask, "+", dst.FileName() + "[dq,1]", tmpDQ},
				}),
				executor.Invoke(engine.Call{
					Task: "imcopy",
					Args: []string{tmpDQ + "[*,*]", dst.FileName() + "[dq,1][*,*]"},
				}),
			}
		},
		Produces: produces(artifact.CarriedForward),
		Scratch: executor.Cleanup{
			Paths: []string{badColumnList},
			Globs: []string{"tmp*.fits", "mask*.pl"},
		},
	})
}

// RunDispersion measures the dispersion in angstroms per pixel by
// rectifying the first subject against the first arc and reading CD1_1.
// The value is reused for the whole batch.
func (s *Stages) RunDispersion(ctx context.Context, subjects, arcs []string) (float64, error) {
	subject, err := reference.First(artifact.RoleScience, subjects)
	if err != nil {
		return 0, err
	}
	arc, err := reference.First(artifact.RoleArc, arcs)
	if err != nil {
		return 0, err
	}

	src := artifact.Compose(subject, artifact.CarriedForward)
	probe := artifact.Compose(subject, artifact.Rectified)
	arcKey := artifact.Compose(arc, artifact.Extracted)

	var dw float64
	_, err = s.run(ctx, executor.Spec{
		Stage:    Dispersion,
		Subjects: []string{subject},
		Require: func() error {
			if err := reference.Require(s.store, artifact.RoleScience, src); err != nil {
				return err
			}
			return reference.Require(s.store, artifact.RoleArc, arcKey)
		},
		Clean: executor.Cleanup{Keys: []artifact.Key{probe}},
		Batch: []executor.Step{
			executor.Invoke(engine.Call{
				Task:    "gftransform",
				Args:    []string{src.Name()},
				Params:  engine.Params{WavTran: arcKey.Name(), VarDQ: engine.No},
				Subject: subject,
			}),
			executor.Local("read CD1_1", func(ctx context.Context) error {
				value, err := s.engine.Header(ctx, probe.Name()+"[sci,1]", "CD1_1")
				if err != nil {
					return err
				}
				dw, err = strconv.ParseFloat(strings.TrimSpace(value), 64)
				if err != nil {
					return fmt.Errorf("parse CD1_1 %q: %w", value, err)
				}
				return nil
			}),
		},
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Measured dispersion", "subject", subject, "arc", arc, "dw", dw)
	return dw, nil
}

// RunRectify resamples each subject onto a linear wavelength grid with the
// measured dispersion.
func (s *Stages) RunRectify(ctx context.Context, subjects, arcs []string, dw float64) (*executor.Report, error) {
	arc, err := reference.First(artifact.RoleArc, arcs)
	if err != nil {
		return nil, err
	}
	arcKey := artifact.Compose(arc, artifact.Extracted)

	return s.run(ctx, executor.Spec{
		Stage:    Rectify,
		Subjects: subjects,
		Require: func() error {
			return reference.Require(s.store, artifact.RoleArc, arcKey)
		},
		Clean: executor.Cleanup{Keys: keys(subjects, artifact.Rectified)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task: "gftransform",
				Args: []string{artifact.Compose(subject, artifact.CarriedForward).Name()},
				Params: engine.Params{
					WavTran:    arcKey.Name(),
					Dispersion: engine.Float(dw),
					VarDQ:      engine.Yes,
				},
			})}
		},
		Produces: produces(artifact.Rectified),
	})
}

func (s *Stages) RunSky(ctx context.Context, subjects []string) (*executor.Report, error) {
	return s.run(ctx, executor.Spec{
		Stage:    Sky,
		Subjects: subjects,
		Clean:    executor.Cleanup{Keys: keys(subjects, artifact.SkySubtracted)},
		Each: func(subject string) []executor.Step {
			return []executor.Step{executor.Invoke(engine.Call{
				Task:   "gfskysub",
				Args:   []string{artifact.Compose(subject, artifact.Rectified).Name()},
				Params: engine.Params{Interact: engine.No},
			})}
		},
		Produces: produces(artifact.SkySubtracted),
	})
}
