package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
)

const runsDir = "runs"

// RunRepository stores one JSON document per run under <root>/runs.
type RunRepository struct {
	root string
}

func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", persistence.ErrInvalidRunID
	}
	return filepath.Join(rr.root, runsDir, id+".json"), nil
}

// List returns journal entries newest first.
func (rr *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) ([]*models.Run, error) {
	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(rr.root, runsDir)), "*.json")
	if err != nil {
		return nil, persistence.NewRunError("Runs", "", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		run, err := rr.GetByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}
			return nil, err
		}

		if opts.Workflow != "" && run.Workflow != opts.Workflow {
			continue
		}
		if opts.Status != nil && run.Status != *opts.Status {
			continue
		}

		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return []*models.Run{}, nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}

	return runs, nil
}

// GetByID reads one journal entry.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	filePath, err := rr.path(id)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", id, err)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", id, err)
	}

	var run models.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, persistence.NewRunError("RunByID", id, fmt.Errorf("failed to unmarshal: %w", err))
	}

	return &run, nil
}

// Save writes the entry, replacing any previous version.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	filePath, err := rr.path(run.ID)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return persistence.NewRunError("SaveRun", run.ID, fmt.Errorf("failed to create runs directory: %w", err))
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, fmt.Errorf("failed to marshal: %w", err))
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

// Delete removes the entry. Deleting an unknown run is not an error.
func (rr *RunRepository) Delete(_ context.Context, id string) error {
	filePath, err := rr.path(id)
	if err != nil {
		return persistence.NewRunError("DeleteRun", id, err)
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return persistence.NewRunError("DeleteRun", id, err)
	}

	return nil
}
