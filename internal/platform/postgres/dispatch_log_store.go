package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// PostgresDispatchLogStore implements the store.DispatchLogStore interface
// using PostgreSQL. The table is append-only; the only mutation ever
// applied is nulling the queue entry reference when an entry is archived.
type PostgresDispatchLogStore struct {
	db store.DBTX
}

// NewPostgresDispatchLogStore creates a new PostgresDispatchLogStore
func NewPostgresDispatchLogStore(db store.DBTX) *PostgresDispatchLogStore {
	return &PostgresDispatchLogStore{
		db: db,
	}
}

// WithTx returns a new DispatchLogStore instance that uses the provided transaction.
func (s *PostgresDispatchLogStore) WithTx(tx *sql.Tx) store.DispatchLogStore {
	return &PostgresDispatchLogStore{db: tx}
}

// Append writes a new audit record.
func (s *PostgresDispatchLogStore) Append(ctx context.Context, entry *domain.DispatchLogEntry) error {
	query := `
		INSERT INTO dispatch_log (id, tenant_id, queue_entry_id, task_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.QueueEntryID,
		entry.TaskID,
		entry.Action,
		[]byte(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// CountQuarantines returns how many quarantine transitions the task has
// accumulated since the given time.
func (s *PostgresDispatchLogStore) CountQuarantines(ctx context.Context, taskID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM dispatch_log
		WHERE task_id = $1 AND action = $2 AND created_at >= $3
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, taskID, domain.DispatchActionQuarantined, since).Scan(&count)
	if err != nil {
		return 0, MapError(err)
	}

	return count, nil
}

// DetachEntry nulls the queue entry reference on the entry's audit records,
// preserving history independent of queue-entry lifetime.
func (s *PostgresDispatchLogStore) DetachEntry(ctx context.Context, queueEntryID uuid.UUID) error {
	query := `
		UPDATE dispatch_log
		SET queue_entry_id = NULL
		WHERE queue_entry_id = $1
	`

	// Zero rows is fine: an entry may have no audit records yet.
	_, err := s.db.ExecContext(ctx, query, queueEntryID)
	if err != nil {
		return MapError(err)
	}

	return nil
}

// ListForTask returns the task's most recent audit records, newest first.
func (s *PostgresDispatchLogStore) ListForTask(ctx context.Context, taskID uuid.UUID, limit int) ([]*domain.DispatchLogEntry, error) {
	query := `
		SELECT id, tenant_id, queue_entry_id, task_id, action, details, created_at
		FROM dispatch_log
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, taskID, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var entries []*domain.DispatchLogEntry
	for rows.Next() {
		var (
			entry        domain.DispatchLogEntry
			queueEntryID uuid.NullUUID
			details      []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&queueEntryID,
			&entry.TaskID,
			&entry.Action,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch log row: %w", err)
		}
		if queueEntryID.Valid {
			entry.QueueEntryID = &queueEntryID.UUID
		}
		entry.Details = details
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch log rows: %w", err)
	}

	return entries, nil
}
