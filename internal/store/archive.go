package store

import (
	"context"
	"database/sql"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// ArchiveStore persists write-once terminal snapshots of queue entries.
type ArchiveStore interface {
	// Insert writes the archive snapshot. Rows are never updated.
	Insert(ctx context.Context, entry *domain.ExecutionArchiveEntry) error

	// CountForTask returns how many archive rows exist for the task.
	CountForTask(ctx context.Context, taskID uuid.UUID) (int, error)

	// WithTx returns a new ArchiveStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ArchiveStore
}
