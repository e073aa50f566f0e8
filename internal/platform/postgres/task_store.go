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

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
// It only touches the columns the queue subsystem is allowed to: status and
// completion; everything else belongs to the task-management layer.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx returns a new TaskStore instance that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

const taskColumns = `id, tenant_id, title, description, status, urgency, importance,
	claimed_by, claimed_at, completed_at, deleted_at, created_at, updated_at`

// GetByID retrieves a task by its unique ID, scoped to the tenant.
func (s *PostgresTaskStore) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE id = $1 AND tenant_id = $2
	`, taskColumns)

	row := s.db.QueryRowContext(ctx, query, id, tenantID)

	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// ListReady returns tasks in next status that are not soft-deleted.
func (s *PostgresTaskStore) ListReady(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE tenant_id = $1 AND status = $2 AND deleted_at IS NULL
		ORDER BY urgency * importance DESC, created_at ASC
	`, taskColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, domain.TaskStatusNext)
	if err != nil {
		log.Error("failed to query ready tasks",
			"tenant_id", tenantID,
			"error", err)
		return nil, MapError(err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// ListTenants returns the distinct tenant IDs that have tasks.
func (s *PostgresTaskStore) ListTenants(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM tasks
		WHERE deleted_at IS NULL
		ORDER BY tenant_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		tenants = append(tenants, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}

	return tenants, nil
}

// UpdateStatus sets the task's status and, for terminal statuses, its
// completion time.
func (s *PostgresTaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	completedAt *time.Time,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1, completed_at = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, completedAt, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return err
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		claimedBy   sql.NullString
		claimedAt   sql.NullTime
		completedAt sql.NullTime
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.TenantID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Urgency,
		&task.Importance,
		&claimedBy,
		&claimedAt,
		&completedAt,
		&deletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ClaimedBy = claimedBy.String
	if claimedAt.Valid {
		task.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if deletedAt.Valid {
		task.DeletedAt = &deletedAt.Time
	}

	return &task, nil
}
