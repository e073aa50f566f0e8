package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// PostgresDependencyStore implements the store.DependencyStore interface
// using PostgreSQL.
type PostgresDependencyStore struct {
	db store.DBTX
}

// NewPostgresDependencyStore creates a new PostgresDependencyStore
func NewPostgresDependencyStore(db store.DBTX) *PostgresDependencyStore {
	return &PostgresDependencyStore{
		db: db,
	}
}

// WithTx returns a new DependencyStore instance that uses the provided transaction.
func (s *PostgresDependencyStore) WithTx(tx *sql.Tx) store.DependencyStore {
	return &PostgresDependencyStore{db: tx}
}

// Create persists a dependency edge.
func (s *PostgresDependencyStore) Create(ctx context.Context, dep *domain.TaskDependency) error {
	if err := dep.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO task_dependencies (id, tenant_id, task_id, depends_on_task_id, dependency_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		dep.ID,
		dep.TenantID,
		dep.TaskID,
		dep.DependsOnTaskID,
		dep.Type,
		dep.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDependencyExists
		}
		return MapError(err)
	}

	return nil
}

// ListForTask returns all outgoing edges of the task.
func (s *PostgresDependencyStore) ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskDependency, error) {
	query := `
		SELECT id, tenant_id, task_id, depends_on_task_id, dependency_type, created_at
		FROM task_dependencies
		WHERE task_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var deps []*domain.TaskDependency
	for rows.Next() {
		var dep domain.TaskDependency
		if err := rows.Scan(
			&dep.ID,
			&dep.TenantID,
			&dep.TaskID,
			&dep.DependsOnTaskID,
			&dep.Type,
			&dep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		deps = append(deps, &dep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependency rows: %w", err)
	}

	return deps, nil
}

// ListUnmetBlocking returns the IDs of tasks that block the given task and
// are not yet completed. Soft-deleted blockers are ignored: a deleted task
// cannot gate anything.
func (s *PostgresDependencyStore) ListUnmetBlocking(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT d.depends_on_task_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.depends_on_task_id
		WHERE d.task_id = $1
			AND d.dependency_type = $2
			AND t.status != $3
			AND t.deleted_at IS NULL
	`

	return s.queryIDs(ctx, query, taskID, domain.DependencyBlocks, domain.TaskStatusCompleted)
}

// ListBlocksFrom returns the IDs the given task blocks-depends on.
func (s *PostgresDependencyStore) ListBlocksFrom(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT depends_on_task_id
		FROM task_dependencies
		WHERE task_id = $1 AND dependency_type = $2
	`

	return s.queryIDs(ctx, query, taskID, domain.DependencyBlocks)
}

// queryIDs runs a query returning a single UUID column.
func (s *PostgresDependencyStore) queryIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ID rows: %w", err)
	}

	return ids, nil
}
