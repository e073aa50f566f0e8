package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// DispatchLogStore persists the append-only audit trail of queue entry
// state transitions.
type DispatchLogStore interface {
	// Append writes a new audit record. Records are never mutated.
	Append(ctx context.Context, entry *domain.DispatchLogEntry) error

	// CountQuarantines returns how many quarantine transitions the task has
	// accumulated since the given time. The circuit breaker's input.
	CountQuarantines(ctx context.Context, taskID uuid.UUID, since time.Time) (int, error)

	// DetachEntry nulls the queue entry reference on the entry's audit
	// records, preserving history when the entry itself is archived.
	DetachEntry(ctx context.Context, queueEntryID uuid.UUID) error

	// ListForTask returns the task's most recent audit records, newest first.
	ListForTask(ctx context.Context, taskID uuid.UUID, limit int) ([]*domain.DispatchLogEntry, error)

	// WithTx returns a new DispatchLogStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DispatchLogStore
}
