// Package trace records what happened during a self-test run and persists
// it for later inspection.
package trace

import (
	"context"

	"github.com/kcajmagic/COSC-NACHOS/pkg/model"
)

// Store defines the persistence layer for recorded runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Thread events
	AppendEvents(ctx context.Context, runID string, events []model.ThreadEvent) error
	ListEvents(ctx context.Context, runID string) ([]model.ThreadEvent, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
