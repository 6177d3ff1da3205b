package pipeline_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/executor"
	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/persistence/file"
	"github.com/dukex/ifured/pkg/pipeline"
	"github.com/dukex/ifured/pkg/reference"
	"github.com/dukex/ifured/pkg/stages"
	"github.com/dukex/ifured/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *artifact.Store
	engine  *testutil.FakeEngine
	cfg     *config.Config
	journal *file.Persistence
	pipe    *pipeline.Pipeline
}

func newFixture(t *testing.T, science, standard []string, tune func(*config.Config)) fixture {
	t.Helper()

	store := testutil.NewStore(t)
	eng := testutil.NewFakeEngine(store)
	cfg := testutil.Config(store.Layout(), science, standard)
	if tune != nil {
		tune(cfg)
	}

	testutil.Touch(t, store, store.CalibrationFile(testutil.MDF))
	for _, subject := range append(append([]string{}, science...), standard...) {
		eng.SetHeader(artifact.Compose(subject, artifact.Rectified).Name()+"[sci,1]", "CD1_1", "0.9152")
	}

	exec := executor.New(eng, store, slog.Default())
	stg := stages.New(exec, display.Disabled{}, stages.Site{Observatory: cfg.Observatory, MDF: cfg.MDF}, slog.Default())
	journal := file.NewPersistence(t.TempDir())

	return fixture{
		store:   store,
		engine:  eng,
		cfg:     cfg,
		journal: journal,
		pipe:    pipeline.New(cfg, stg, journal, slog.Default()),
	}
}

func cubes(t *testing.T, store *artifact.Store) []string {
	t.Helper()
	matches, err := filepath.Glob(store.Resolve("*_3D.fits"))
	require.NoError(t, err)
	for i, m := range matches {
		matches[i] = filepath.Base(m)
	}
	return matches
}

func TestHousekeeping(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)
	ctx := context.Background()
	testutil.Touch(t, f.store, "tmpS1.fits", "gfreduce.log")

	require.NoError(t, f.pipe.Housekeeping(ctx))

	assert.False(t, f.store.ExistsPath("tmpS1.fits"))
	assert.False(t, f.store.ExistsPath("gfreduce.log"))
	assert.True(t, f.store.ExistsPath(f.store.MasterBiasPath()))
	assert.True(t, f.store.ExistsPath(testutil.MDF))
	assert.Equal(t, []string{"gbias"}, f.engine.Tasks())

	require.NoError(t, f.pipe.Housekeeping(ctx))
	assert.Len(t, f.engine.CallsFor("gbias"), 1)
}

func TestHousekeeping_MissingMDF(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)
	require.NoError(t, f.store.DeletePath(f.store.CalibrationFile(testutil.MDF)))

	err := f.pipe.Housekeeping(context.Background())

	var missing *reference.MissingReferenceError
	require.ErrorAs(t, err, &missing)
}

func TestPlan_StandardStar(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)

	plan, err := f.pipe.Plan(config.StandardStarWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"trace-reference", "wavelength", "gap-mask", "flat-scatter", "qe-correct", "response", "view-response",
		"science-trace", "scatter", "cosmic-rays", "science-qe", "carry-forward", "dispersion", "rectify", "sky",
		"sensitivity",
	}, plan.Names())
}

func TestPlan_Science(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)

	plan, err := f.pipe.Plan(config.ScienceWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"science-trace", "scatter", "cosmic-rays", "science-qe", "carry-forward", "dispersion", "rectify", "sky",
		"flux-calibrate", "cube",
	}, plan.Names())

	f.cfg.Profiles.Science.RunCalibrations = true
	plan, err = f.pipe.Plan(config.ScienceWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, "trace-reference", plan.Names()[0])
	assert.Contains(t, plan.Names(), "response")
	assert.NotContains(t, plan.Names(), "view-response")
}

func TestPlan_BadColumnsAlias(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.Alias = config.AliasBadColumns
		cfg.Science.BadColumns = &config.BadColumns{Columns: []int{1024}, Width: 2048, Height: 4608}
	})

	plan, err := f.pipe.Plan(config.ScienceWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	assert.Contains(t, plan.Names(), "bad-columns")
	assert.NotContains(t, plan.Names(), "carry-forward")
}

func TestPlan_ShowFlags(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Calibrations.Show = config.Show{Flats: true, QE: true, Response: true}
	})

	plan, err := f.pipe.Plan(config.CalibrationsWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"trace-reference", "wavelength", "gap-mask", "flat-scatter", "view-flats", "qe-correct", "view-qe",
		"response", "view-response",
	}, plan.Names())
}

func TestPlan_Errors(t *testing.T) {
	f := newFixture(t, nil, []string{"T1"}, nil)

	_, err := f.pipe.Plan("twilight", pipeline.PlanOptions{})
	assert.ErrorIs(t, err, config.ErrUnknownWorkflow)

	_, err = f.pipe.Plan(config.ScienceWorkflow, pipeline.PlanOptions{})
	assert.ErrorIs(t, err, pipeline.ErrEmptyTarget)

	plan, err := f.pipe.Plan(config.StandardStarWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	_, err = plan.From("encubenate")
	assert.ErrorIs(t, err, pipeline.ErrUnknownStep)

	tail, err := plan.From("rectify")
	require.NoError(t, err)
	assert.Equal(t, []string{"rectify", "sky", "sensitivity"}, tail.Names())
}

func TestRun_StandardStar(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)
	ctx := context.Background()

	run, err := f.pipe.Run(ctx, config.StandardStarWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, f.store.ExistsPath(f.store.SensitivityPath("bd284211_")))
	assert.Empty(t, cubes(t, f.store))
	assert.Len(t, f.engine.CallsFor("gsstandard"), 1)

	// the scatter pass on the standard uses the first flat's block mask
	scatter := f.engine.CallsFor("gfscatsub")
	require.Len(t, scatter, 2)
	assert.Equal(t, []string{"rgT1", "blkmask_F2"}, scatter[1].Args)
}

func TestRun_ScienceProducesCubes(t *testing.T) {
	f := newFixture(t, []string{"S1", "S2"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.RunCalibrations = true
	})
	ctx := context.Background()
	testutil.Touch(t, f.store, f.store.SensitivityPath("bd284211_"))

	run, err := f.pipe.Run(ctx, config.ScienceWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"cstxeqxbrgS1_3D.fits", "cstxeqxbrgS2_3D.fits"}, cubes(t, f.store))
	for _, call := range f.engine.CallsFor("gfscatsub")[1:] {
		assert.Equal(t, "blkmask_F1", call.Args[1])
	}
	assert.Equal(t, pipeline.HousekeepingStep, run.Steps[0].Step)
	assert.Equal(t, "cube", run.LastStep().Step)
}

func TestRun_StandardThenScience(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.RunCalibrations = true
	})
	ctx := context.Background()

	_, err := f.pipe.Run(ctx, config.StandardStarWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)
	_, err = f.pipe.Run(ctx, config.ScienceWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, f.engine.CallsFor("gbias"), 1)
	assert.Equal(t, []string{"cstxeqxbrgS1_3D.fits"}, cubes(t, f.store))

	calibrate := f.engine.CallsFor("gscalibrate")
	require.Len(t, calibrate, 1)
	sfunc, _ := calibrate[0].Params.Get("sfunction")
	assert.Equal(t, f.store.Sensitivity("bd284211_"), sfunc)
}

func TestRun_ScienceWithoutSensitivity(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.RunCalibrations = true
	})

	_, err := f.pipe.Run(context.Background(), config.ScienceWorkflow, pipeline.RunOptions{})

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "flux-calibrate", runErr.Step)
	var missing *reference.MissingReferenceError
	assert.ErrorAs(t, err, &missing)
	assert.Empty(t, f.engine.CallsFor("gscalibrate"))
}

func TestRun_FireAndContinueStopsWorkflow(t *testing.T) {
	f := newFixture(t, []string{"S1", "S2", "S3"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.RunCalibrations = true
	})
	f.engine.FailOn("gemcrspec", "S2")
	ctx := context.Background()

	run, err := f.pipe.Run(ctx, config.ScienceWorkflow, pipeline.RunOptions{})

	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "cosmic-rays", runErr.Step)
	assert.Equal(t, []string{"S2"}, runErr.Subjects())
	assert.ErrorIs(t, err, testutil.ErrInjected)

	assert.True(t, f.store.Exists(artifact.Compose("S1", artifact.CRCleaned)))
	assert.True(t, f.store.Exists(artifact.Compose("S3", artifact.CRCleaned)))
	assert.Empty(t, f.engine.CallsFor("gqecorr"))

	assert.Equal(t, models.RunStatusFailed, run.Status)
	failed := run.FailedStep()
	require.NotNil(t, failed)
	require.Len(t, failed.Failures, 1)
	assert.Equal(t, "S2", failed.Failures[0].Subject)

	stored, err := f.journal.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, "cosmic-rays", stored.LastStep().Step)
}

func TestRun_ResumeFromRectify(t *testing.T) {
	f := newFixture(t, []string{"S1", "S2"}, []string{"T1"}, func(cfg *config.Config) {
		cfg.Profiles.Science.RunCalibrations = true
	})
	ctx := context.Background()
	testutil.Touch(t, f.store, f.store.SensitivityPath("bd284211_"))

	_, err := f.pipe.Run(ctx, config.ScienceWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)
	f.engine.Reset()

	run, err := f.pipe.Run(ctx, config.ScienceWorkflow, pipeline.RunOptions{FromStep: "rectify", SkipHousekeeping: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"gftransform", "hselect", "gftransform", "gftransform"}, f.engine.Tasks()[:4])
	assert.Empty(t, f.engine.CallsFor("gemcrspec"))
	assert.Equal(t, "rectify", run.FromStep)
	assert.Equal(t, "rectify", run.Steps[0].Step)
	assert.Equal(t, []string{"cstxeqxbrgS1_3D.fits", "cstxeqxbrgS2_3D.fits"}, cubes(t, f.store))
}

func TestRun_UnknownStep(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)

	run, err := f.pipe.Run(context.Background(), config.ScienceWorkflow, pipeline.RunOptions{FromStep: "encubenate"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownStep)
	assert.Nil(t, run)
	assert.Empty(t, f.engine.Calls())
}

func TestRun_Journal(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)
	ctx := context.Background()

	run, err := f.pipe.Run(ctx, config.CalibrationsWorkflow, pipeline.RunOptions{ConfigPath: "run.yaml"})
	require.NoError(t, err)

	runs, err := f.journal.Runs(ctx, persistence.ListRunsOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "run.yaml", runs[0].ConfigPath)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	require.NotNil(t, runs[0].FinishedAt)

	names := make([]string, 0, len(runs[0].Steps))
	for _, step := range runs[0].Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status)
		names = append(names, step.Step)
	}
	assert.Equal(t, []string{
		"housekeeping", "trace-reference", "wavelength", "gap-mask", "flat-scatter", "qe-correct", "response",
	}, names)
	assert.Equal(t, []string{"F1"}, runs[0].Steps[1].Subjects)
}

func TestRun_MDF(t *testing.T) {
	f := newFixture(t, []string{"S1"}, []string{"T1"}, nil)
	require.NoError(t, f.store.DeletePath(f.store.CalibrationFile(testutil.MDF)))

	_, err := f.pipe.Run(context.Background(), pipeline.MDFWorkflow, pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"gbias", "copy", "gfreduce", "gfextract"}, f.engine.Tasks())
	assert.True(t, f.store.ExistsPath(testutil.MDF))
	extract := f.engine.CallsFor("gfextract")[0]
	assert.Equal(t, []string{"rgF1"}, extract.Args)
}
