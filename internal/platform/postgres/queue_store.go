package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// PostgresQueueStore implements the store.QueueStore interface using PostgreSQL.
//
// The single-active-entry-per-task invariant is enforced by the partial
// unique index execution_queue_one_active_per_task; Insert maps its
// violation to store.ErrActiveEntryExists.
type PostgresQueueStore struct {
	db store.DBTX
}

// NewPostgresQueueStore creates a new PostgresQueueStore
func NewPostgresQueueStore(db store.DBTX) *PostgresQueueStore {
	return &PostgresQueueStore{
		db: db,
	}
}

// WithTx returns a new QueueStore instance that uses the provided transaction.
func (s *PostgresQueueStore) WithTx(tx *sql.Tx) store.QueueStore {
	return &PostgresQueueStore{db: tx}
}

const entryColumns = `id, tenant_id, task_id, executor_class, status, priority, context,
	claimed_by, result, error_message, retry_count, max_retries,
	queued_at, claimed_at, dispatched_at, completed_at`

// Insert persists a new queued entry.
func (s *PostgresQueueStore) Insert(ctx context.Context, entry *domain.ExecutionQueueEntry) error {
	log := logger.FromContext(ctx)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO execution_queue (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, entryColumns)

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
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: task %s", store.ErrActiveEntryExists, entry.TaskID)
		}
		log.Error("failed to insert queue entry",
			"entry_id", entry.ID,
			"task_id", entry.TaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves an entry by ID.
func (s *PostgresQueueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE id = $1
	`, entryColumns)

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrEntryNotFound
		}
		return nil, MapError(err)
	}

	return entry, nil
}

// Claim moves the entry from queued to claimed only if its status is still
// queued. This is a compare-and-set on status, not a lock: when two runners
// race, exactly one update matches a row and the other sees zero rows
// affected and returns false without error.
func (s *PostgresQueueStore) Claim(ctx context.Context, id uuid.UUID, claimant string) (bool, error) {
	query := `
		UPDATE execution_queue
		SET status = $1, claimed_by = $2, claimed_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.QueueStatusClaimed,
		claimant,
		time.Now().UTC(),
		id,
		domain.QueueStatusQueued,
	)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkDispatched moves a claimed entry to dispatched.
func (s *PostgresQueueStore) MarkDispatched(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE execution_queue
		SET status = $1, dispatched_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.QueueStatusDispatched,
		time.Now().UTC(),
		id,
		domain.QueueStatusClaimed,
	)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Update persists the entry's mutable fields.
func (s *PostgresQueueStore) Update(ctx context.Context, entry *domain.ExecutionQueueEntry) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE execution_queue
		SET status = $1, claimed_by = $2, result = $3, error_message = $4,
			retry_count = $5, claimed_at = $6, dispatched_at = $7, completed_at = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Status,
		nullString(entry.ClaimedBy),
		nullString(entry.Result),
		nullString(entry.ErrorMessage),
		entry.RetryCount,
		entry.ClaimedAt,
		entry.DispatchedAt,
		entry.CompletedAt,
		entry.ID,
	)
	if err != nil {
		log.Error("failed to update queue entry",
			"entry_id", entry.ID,
			"status", entry.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "queue entry"); err != nil {
		return err
	}

	return nil
}

// Delete removes the entry row.
func (s *PostgresQueueStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM execution_queue WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "queue entry"); err != nil {
		return err
	}

	return nil
}

// HasActiveEntry reports whether the task currently holds its active slot.
func (s *PostgresQueueStore) HasActiveEntry(ctx context.Context, taskID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM execution_queue
			WHERE task_id = $1 AND status IN ($2, $3, $4, $5)
		)
	`

	var exists bool
	err := s.db.QueryRowContext(ctx, query,
		taskID,
		domain.QueueStatusQueued,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		domain.QueueStatusQuarantine,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}

	return exists, nil
}

// ListQueued returns up to limit queued entries for the executor class,
// highest priority first, FIFO within equal priority.
func (s *PostgresQueueStore) ListQueued(
	ctx context.Context,
	class domain.ExecutorClass,
	limit int,
) ([]*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE status = $1 AND executor_class = $2
		ORDER BY priority DESC, queued_at ASC
		LIMIT $3
	`, entryColumns)

	return s.queryEntries(ctx, query, domain.QueueStatusQueued, class, limit)
}

// ListActiveByTask returns the task's entries in active statuses.
func (s *PostgresQueueStore) ListActiveByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE task_id = $1 AND status IN ($2, $3, $4, $5)
		ORDER BY queued_at ASC
	`, entryColumns)

	return s.queryEntries(ctx, query,
		taskID,
		domain.QueueStatusQueued,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		domain.QueueStatusQuarantine,
	)
}

// ListActive returns all entries in active statuses.
func (s *PostgresQueueStore) ListActive(ctx context.Context) ([]*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE status IN ($1, $2, $3, $4)
		ORDER BY queued_at ASC
	`, entryColumns)

	return s.queryEntries(ctx, query,
		domain.QueueStatusQueued,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		domain.QueueStatusQuarantine,
	)
}

// ListQuarantined returns entries in quarantine status, optionally scoped
// to a tenant.
func (s *PostgresQueueStore) ListQuarantined(ctx context.Context, tenantID uuid.UUID) ([]*domain.ExecutionQueueEntry, error) {
	if tenantID == uuid.Nil {
		query := fmt.Sprintf(`
			SELECT %s
			FROM execution_queue
			WHERE status = $1
			ORDER BY queued_at ASC
		`, entryColumns)
		return s.queryEntries(ctx, query, domain.QueueStatusQuarantine)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE status = $1 AND tenant_id = $2
		ORDER BY queued_at ASC
	`, entryColumns)

	return s.queryEntries(ctx, query, domain.QueueStatusQuarantine, tenantID)
}

// ListTerminalBefore returns terminal entries completed before the cutoff.
func (s *PostgresQueueStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE status IN ($1, $2, $3) AND completed_at IS NOT NULL AND completed_at < $4
		ORDER BY completed_at ASC
	`, entryColumns)

	return s.queryEntries(ctx, query,
		domain.QueueStatusCompleted,
		domain.QueueStatusFailed,
		domain.QueueStatusCancelled,
		cutoff,
	)
}

// ListStuck returns claimed or dispatched entries whose claim is older than
// the given age.
func (s *PostgresQueueStore) ListStuck(ctx context.Context, olderThan time.Duration) ([]*domain.ExecutionQueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM execution_queue
		WHERE status IN ($1, $2) AND claimed_at IS NOT NULL AND claimed_at < $3
		ORDER BY claimed_at ASC
	`, entryColumns)

	return s.queryEntries(ctx, query,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		time.Now().UTC().Add(-olderThan),
	)
}

// CountByStatus returns entry counts grouped by status for the tenant.
func (s *PostgresQueueStore) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[domain.QueueStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM execution_queue
		WHERE tenant_id = $1
		GROUP BY status
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int)
	for rows.Next() {
		var status domain.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status count rows: %w", err)
	}

	return counts, nil
}

// CountByClass returns active entry counts grouped by executor class.
func (s *PostgresQueueStore) CountByClass(ctx context.Context, tenantID uuid.UUID) (map[domain.ExecutorClass]int, error) {
	query := `
		SELECT executor_class, COUNT(*)
		FROM execution_queue
		WHERE tenant_id = $1 AND status IN ($2, $3, $4, $5)
		GROUP BY executor_class
	`

	rows, err := s.db.QueryContext(ctx, query,
		tenantID,
		domain.QueueStatusQueued,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		domain.QueueStatusQuarantine,
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	counts := make(map[domain.ExecutorClass]int)
	for rows.Next() {
		var class domain.ExecutorClass
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan class count row: %w", err)
		}
		counts[class] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class count rows: %w", err)
	}

	return counts, nil
}

// queryEntries runs an entry query and scans the rows.
func (s *PostgresQueueStore) queryEntries(ctx context.Context, query string, args ...any) ([]*domain.ExecutionQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var entries []*domain.ExecutionQueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entry rows: %w", err)
	}

	return entries, nil
}

// scanEntry reads one queue entry row into a domain.ExecutionQueueEntry.
func scanEntry(row rowScanner) (*domain.ExecutionQueueEntry, error) {
	var (
		entry        domain.ExecutionQueueEntry
		contextBlob  []byte
		claimedBy    sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
		claimedAt    sql.NullTime
		dispatchedAt sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.TaskID,
		&entry.ExecutorClass,
		&entry.Status,
		&entry.Priority,
		&contextBlob,
		&claimedBy,
		&result,
		&errorMessage,
		&entry.RetryCount,
		&entry.MaxRetries,
		&entry.QueuedAt,
		&claimedAt,
		&dispatchedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Context = contextBlob
	entry.ClaimedBy = claimedBy.String
	entry.Result = result.String
	entry.ErrorMessage = errorMessage.String
	if claimedAt.Valid {
		entry.ClaimedAt = &claimedAt.Time
	}
	if dispatchedAt.Valid {
		entry.DispatchedAt = &dispatchedAt.Time
	}
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}

	return &entry, nil
}

// nullString converts an empty string to NULL for storage.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
