package postgres

import (
	"context"
	"database/sql"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// PostgresArchiveStore implements the store.ArchiveStore interface using
// PostgreSQL. Archive rows are write-once.
type PostgresArchiveStore struct {
	db store.DBTX
}

// NewPostgresArchiveStore creates a new PostgresArchiveStore
func NewPostgresArchiveStore(db store.DBTX) *PostgresArchiveStore {
	return &PostgresArchiveStore{
		db: db,
	}
}

// WithTx returns a new ArchiveStore instance that uses the provided transaction.
func (s *PostgresArchiveStore) WithTx(tx *sql.Tx) store.ArchiveStore {
	return &PostgresArchiveStore{db: tx}
}

// Insert writes the archive snapshot.
func (s *PostgresArchiveStore) Insert(ctx context.Context, entry *domain.ExecutionArchiveEntry) error {
	query := `
		INSERT INTO execution_archive (
			id, tenant_id, task_id, executor_class, status, priority, context,
			claimed_by, result, error_message, retry_count, max_retries,
			queued_at, claimed_at, dispatched_at, completed_at, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.TaskID,
		entry.ExecutorClass,
		entry.Status,
		entry.Priority,
		[]byte(entry.Context),
		nullString(entry.ClaimedBy),
		nullString(entry.Result),
		nullString(entry.ErrorMessage),
		entry.RetryCount,
		entry.MaxRetries,
		entry.QueuedAt,
		entry.ClaimedAt,
		entry.DispatchedAt,
		entry.CompletedAt,
		entry.ArchivedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// CountForTask returns how many archive rows exist for the task.
func (s *PostgresArchiveStore) CountForTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM execution_archive
		WHERE task_id = $1
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, taskID).Scan(&count); err != nil {
		return 0, MapError(err)
	}

	return count, nil
}
