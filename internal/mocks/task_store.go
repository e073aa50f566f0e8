package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// MockTaskStore implements store.TaskStore for testing
type MockTaskStore struct {
	// Function fields for customizable behavior
	GetByIDFn      func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error)
	ListReadyFn    func(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error)
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.TaskStatus, completedAt *time.Time) error

	// Data for default implementation
	Tasks   map[uuid.UUID]*domain.Task
	Tenants []uuid.UUID
}

// NewMockTaskStore creates a new mock store with initialized defaults
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		Tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// GetByID implements the TaskStore interface
func (m *MockTaskStore) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, tenantID, id)
	}

	task, exists := m.Tasks[id]
	if !exists || (tenantID != uuid.Nil && task.TenantID != tenantID) {
		return nil, store.ErrTaskNotFound
	}

	clone := *task
	return &clone, nil
}

// ListReady implements the TaskStore interface
func (m *MockTaskStore) ListReady(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	if m.ListReadyFn != nil {
		return m.ListReadyFn(ctx, tenantID)
	}

	var ready []*domain.Task
	for _, task := range m.Tasks {
		if task.TenantID == tenantID && task.IsReady() {
			clone := *task
			ready = append(ready, &clone)
		}
	}
	return ready, nil
}

// ListTenants implements the TaskStore interface
func (m *MockTaskStore) ListTenants(ctx context.Context) ([]uuid.UUID, error) {
	if len(m.Tenants) > 0 {
		return m.Tenants, nil
	}

	seen := make(map[uuid.UUID]bool)
	var tenants []uuid.UUID
	for _, task := range m.Tasks {
		if !seen[task.TenantID] {
			seen[task.TenantID] = true
			tenants = append(tenants, task.TenantID)
		}
	}
	return tenants, nil
}

// UpdateStatus implements the TaskStore interface
func (m *MockTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, completedAt *time.Time) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status, completedAt)
	}

	task, exists := m.Tasks[id]
	if !exists {
		return store.ErrTaskNotFound
	}

	task.Status = status
	task.CompletedAt = completedAt
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// WithTx implements the TaskStore interface; the mock ignores the
// transaction and returns itself.
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}
