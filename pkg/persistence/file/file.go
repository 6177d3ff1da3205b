// Package file provides the file-based run journal.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	runs *RunRepository
}

// NewPersistence creates a journal rooted at the given directory. A
// "file://" scheme prefix is accepted.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root: cleanRoot,
		runs: NewRunRepository(cleanRoot),
	}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Runs(ctx context.Context, opts persistence.ListRunsOptions) ([]*models.Run, error) {
	return fp.runs.List(ctx, opts)
}

func (fp *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return fp.runs.Save(ctx, run)
}

func (fp *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return fp.runs.GetByID(ctx, id)
}

func (fp *Persistence) DeleteRun(ctx context.Context, id string) error {
	return fp.runs.Delete(ctx, id)
}

var _ persistence.Persistence = (*Persistence)(nil)
