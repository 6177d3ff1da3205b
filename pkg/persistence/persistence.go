// Package persistence provides the storage abstraction for the run journal.
package persistence

import (
	"context"

	"github.com/dukex/ifured/pkg/models"
)

// ListRunsOptions filters and orders a journal listing.
type ListRunsOptions struct {
	Workflow string
	Status   *models.RunStatus
	Limit    int
	Offset   int
}

type Persistence interface {
	Runs(ctx context.Context, opts ListRunsOptions) ([]*models.Run, error)
	SaveRun(ctx context.Context, run *models.Run) error
	RunByID(ctx context.Context, id string) (*models.Run, error)
	DeleteRun(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
