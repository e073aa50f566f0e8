package store

import (
	"context"
	"database/sql"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// DependencyStore persists directed dependency edges between tasks.
type DependencyStore interface {
	// Create persists a dependency edge. Returns ErrDependencyExists if the
	// identical edge (same endpoints and type) already exists. Cycle
	// prevention is the dependency checker's responsibility, not the store's.
	Create(ctx context.Context, dep *domain.TaskDependency) error

	// ListForTask returns all outgoing edges of the task (edges where the
	// task is the dependent).
	ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskDependency, error)

	// ListUnmetBlocking returns the IDs of tasks that block the given task
	// and are not yet completed (and not soft-deleted).
	ListUnmetBlocking(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)

	// ListBlocksFrom returns the IDs the given task blocks-depends on,
	// the adjacency list the cycle search traverses.
	ListBlocksFrom(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)

	// WithTx returns a new DependencyStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DependencyStore
}
