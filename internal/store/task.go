package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// TaskStore defines the queue subsystem's view of the task table. Tasks are
// owned by the task-management layer; this interface only reads them and
// updates status and claim fields.
type TaskStore interface {
	// GetByID retrieves a task by its unique ID, scoped to the tenant.
	// Returns ErrTaskNotFound if the task does not exist or is hard-deleted.
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error)

	// ListReady returns tasks in next status that are not soft-deleted,
	// the dispatcher's candidate set for the given tenant.
	ListReady(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error)

	// ListTenants returns the distinct tenant IDs that have tasks,
	// driving the per-tenant dispatch loop.
	ListTenants(ctx context.Context) ([]uuid.UUID, error)

	// UpdateStatus sets the task's status. A non-nil completedAt is written
	// alongside terminal statuses.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, completedAt *time.Time) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows multiple operations to be executed within a single transaction.
	WithTx(tx *sql.Tx) TaskStore
}
