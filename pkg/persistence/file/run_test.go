package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(id, workflow string, status models.RunStatus, started time.Time) *models.Run {
	return &models.Run{
		ID:        id,
		Workflow:  workflow,
		Status:    status,
		WorkDir:   "/data/work",
		StartedAt: started,
		Steps: []*models.StepRecord{
			{Step: "housekeeping", Status: models.StepStatusCompleted, StartedAt: started},
		},
	}
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := NewRunRepository(root)

	run := newRun("r1", "science", models.RunStatusRunning, time.Date(2024, 6, 9, 21, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, run))

	info, err := os.Stat(filepath.Join(root, "runs", "r1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "science", got.Workflow)
	assert.Equal(t, run.StartedAt, got.StartedAt)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "housekeeping", got.Steps[0].Step)

	run.Steps = append(run.Steps, &models.StepRecord{
		Step:     "cosmic-rays",
		Status:   models.StepStatusFailed,
		Failures: []models.SubjectFailure{{Subject: "S2", Error: "gemcrspec failed"}},
	})
	run.Finish(models.RunStatusFailed, run.StartedAt.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, run))

	got, err = repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "S2", got.FailedStep().Failures[0].Subject)
	require.NotNil(t, got.FinishedAt)
}

func TestRunRepository_NotFound(t *testing.T) {
	repo := NewRunRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepository_InvalidID(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, persistence.ErrInvalidRunID, id)
	}

	err := repo.Save(ctx, &models.Run{ID: "../x"})
	assert.ErrorIs(t, err, persistence.ErrInvalidRunID)
}

func TestRunRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(t.TempDir())

	require.NoError(t, repo.Save(ctx, newRun("r1", "science", models.RunStatusCompleted, time.Now().UTC())))
	require.NoError(t, repo.Delete(ctx, "r1"))
	require.NoError(t, repo.Delete(ctx, "r1"))

	_, err := repo.GetByID(ctx, "r1")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(t.TempDir())

	empty, err := repo.List(ctx, persistence.ListRunsOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	base := time.Date(2024, 6, 9, 21, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, newRun("a", "standard-star", models.RunStatusCompleted, base)))
	require.NoError(t, repo.Save(ctx, newRun("b", "science", models.RunStatusFailed, base.Add(time.Hour))))
	require.NoError(t, repo.Save(ctx, newRun("c", "science", models.RunStatusCompleted, base.Add(2*time.Hour))))

	all, err := repo.List(ctx, persistence.ListRunsOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	science, err := repo.List(ctx, persistence.ListRunsOptions{Workflow: "science"})
	require.NoError(t, err)
	assert.Len(t, science, 2)

	failed := models.RunStatusFailed
	onlyFailed, err := repo.List(ctx, persistence.ListRunsOptions{Status: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "b", onlyFailed[0].ID)

	page, err := repo.List(ctx, persistence.ListRunsOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	past, err := repo.List(ctx, persistence.ListRunsOptions{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, past)
}
