package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "run.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "Gemini-North", cfg.Observatory)
	assert.Len(t, cfg.BiasRefs, 3)
	assert.Equal(t, []string{"N20240609S0066"}, cfg.Science.FlatRefs)
	assert.Equal(t, "bd284211_", cfg.StandardStar.Root)
	assert.Equal(t, DefaultLayout(), cfg.Layout)

	sci, err := cfg.Profile(ScienceWorkflow)
	require.NoError(t, err)
	assert.True(t, sci.RunCalibrations)
	assert.Equal(t, 6, sci.CosmicRays.NIter)
	assert.Equal(t, 4.5, sci.CosmicRays.SigClip, "unset fields keep their defaults")
	assert.Equal(t, "4", sci.SubjectScatter.XString())
	assert.Equal(t, "3", sci.SubjectScatter.YString())

	std, err := cfg.Profile(StandardStarWorkflow)
	require.NoError(t, err)
	assert.Equal(t, "5", std.SubjectScatter.XString())
	assert.True(t, std.Show.Response)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing bias refs",
			doc:  "standard_star: {name: bd284211, root: bd284211_}\n",
			want: "bias_refs",
		},
		{
			name: "unknown key",
			doc:  "bias_refs: [B1]\nstandard_star: {name: s, root: r}\nflats: [F1]\n",
			want: "flats",
		},
		{
			name: "bad slits",
			doc:  "bias_refs: [B1]\nstandard_star: {name: s, root: r}\nprofiles:\n  science:\n    slits: green\n",
			want: "slits",
		},
		{
			name: "empty reference list",
			doc:  "bias_refs: []\nstandard_star: {name: s, root: r}\n",
			want: "bias_refs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.NotEmpty(t, vErr.Problems)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("bias_refs: [B1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestValidate_CrossFieldRules(t *testing.T) {
	cfg := Default()
	cfg.BiasRefs = []string{"B1"}
	cfg.StandardStar.Name = "bd284211"
	cfg.StandardStar.Root = "bd284211_"
	require.NoError(t, cfg.Validate())

	cfg.Science = Target{Refs: []string{"S1"}}
	cfg.Profiles.Science.Alias = AliasBadColumns

	err := cfg.Validate()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{
		"science needs refs, flat_refs and arc_refs",
		"science uses the bad-columns alias but its target has no bad_columns",
	}, vErr.Problems)
}

func TestValidate_StructRules(t *testing.T) {
	cfg := Default()
	cfg.BiasRefs = []string{"B1"}
	cfg.StandardStar.Name = "bd284211"
	cfg.StandardStar.Root = "bd284211_"
	cfg.Profiles.Calibrations.Response.Order = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Profiles.Calibrations.Response.Order failed on min")
}

func TestMarshal_RoundTripsDefaults(t *testing.T) {
	cfg := Default()
	cfg.BiasRefs = []string{"B1", "B2"}
	cfg.StandardStar.Name = "bd284211"
	cfg.StandardStar.Root = "bd284211_"
	cfg.Science = Target{
		Refs:       []string{"S1", "S2"},
		FlatRefs:   []string{"F1"},
		ArcRefs:    []string{"A1"},
		BadColumns: &BadColumns{Columns: []int{1021, 1022}, Width: 2048, Height: 4224},
	}

	data, err := Marshal(&cfg)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, *parsed)
}

func TestConfig_ProfileAndTarget(t *testing.T) {
	cfg := Default()
	cfg.Standard.Refs = []string{"R1"}
	cfg.Science.Refs = []string{"S1"}

	_, err := cfg.Profile("nightly")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)

	target, err := cfg.TargetFor(StandardStarWorkflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1"}, target.Refs)

	target, err = cfg.TargetFor(CalibrationsWorkflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, target.Refs)

	_, err = cfg.TargetFor("nightly")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestOrders_String(t *testing.T) {
	o := Orders{X: []int{5, 4}, Y: []int{6}}
	assert.Equal(t, "x=5,4 y=6", o.String())
}
