package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/ifured/pkg/config"
	"github.com/dukex/ifured/pkg/pipeline"
	"github.com/dukex/ifured/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{url: "./journal", expected: "file"},
		{url: "file:///var/lib/ifured", expected: "file"},
		{url: "postgres://localhost/ifured", expected: "postgres"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parsePersistenceProvider(tt.url), tt.url)
	}
}

func TestNewPersistence(t *testing.T) {
	root := filepath.Join(t.TempDir(), "journal")

	journal, err := NewPersistence("file://" + root)
	require.NoError(t, err)
	assert.NoError(t, journal.HealthCheck(context.Background()))

	_, err = NewPersistence("postgres://localhost/ifured")
	assert.ErrorContains(t, err, "unsupported journal provider")
}

func TestNewPipeline_WorkDirOverride(t *testing.T) {
	store := testutil.NewStore(t)
	cfg := testutil.Config(config.DefaultLayout(), []string{"S1"}, []string{"T1"})

	p := NewPipeline(cfg, PipelineOptions{Engine: testutil.NewFakeEngine(store), WorkDir: store.Layout().WorkDir}, slog.Default())

	plan, err := p.Plan(config.ScienceWorkflow, pipeline.PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, "science-trace", plan.Names()[0])
	assert.Equal(t, "../data/", cfg.Layout.RawDir)
}
