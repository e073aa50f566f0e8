package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// QueueStore owns the execution queue table and its state transitions.
type QueueStore interface {
	// Insert persists a new queued entry. Returns ErrActiveEntryExists if
	// the task already has an entry in an active status (enforced by the
	// partial unique index on task_id).
	Insert(ctx context.Context, entry *domain.ExecutionQueueEntry) error

	// GetByID retrieves an entry by ID.
	// Returns ErrEntryNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionQueueEntry, error)

	// Claim is the concurrency-safety primitive: a conditional update that
	// moves the entry from queued to claimed only if its status is still
	// queued. Returns false, with no error, when another claimant already
	// advanced the entry.
	Claim(ctx context.Context, id uuid.UUID, claimant string) (bool, error)

	// MarkDispatched moves a claimed entry to dispatched for long-running
	// external work. Returns false if the entry is no longer claimed.
	MarkDispatched(ctx context.Context, id uuid.UUID) (bool, error)

	// Update persists the entry's mutable fields: status, result, error
	// message, retry count, claim fields, and timestamps.
	Update(ctx context.Context, entry *domain.ExecutionQueueEntry) error

	// Delete removes the entry row. Used by the archive sweep after the
	// terminal snapshot has been written.
	Delete(ctx context.Context, id uuid.UUID) error

	// HasActiveEntry reports whether the task currently holds its active
	// slot. The dispatcher uses this as a fast pre-check before Insert.
	HasActiveEntry(ctx context.Context, taskID uuid.UUID) (bool, error)

	// ListQueued returns up to limit queued entries for the executor class,
	// ordered by priority descending and queued time ascending.
	ListQueued(ctx context.Context, class domain.ExecutorClass, limit int) ([]*domain.ExecutionQueueEntry, error)

	// ListActiveByTask returns the task's entries in active statuses.
	ListActiveByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ExecutionQueueEntry, error)

	// ListActive returns all entries in active statuses, the sweep's input
	// for sync and orphan reconciliation.
	ListActive(ctx context.Context) ([]*domain.ExecutionQueueEntry, error)

	// ListQuarantined returns entries in quarantine status, optionally
	// scoped to a tenant (uuid.Nil means all tenants).
	ListQuarantined(ctx context.Context, tenantID uuid.UUID) ([]*domain.ExecutionQueueEntry, error)

	// ListTerminalBefore returns terminal entries whose completion time is
	// older than the cutoff, the sweep's stale-retention input.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*domain.ExecutionQueueEntry, error)

	// ListStuck returns claimed or dispatched entries whose claim is older
	// than the given age, for startup reconciliation after a crash.
	ListStuck(ctx context.Context, olderThan time.Duration) ([]*domain.ExecutionQueueEntry, error)

	// CountByStatus returns entry counts grouped by status for the tenant.
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[domain.QueueStatus]int, error)

	// CountByClass returns active entry counts grouped by executor class for the tenant.
	CountByClass(ctx context.Context, tenantID uuid.UUID) (map[domain.ExecutorClass]int, error)

	// WithTx returns a new QueueStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) QueueStore
}
