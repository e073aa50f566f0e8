package mocks

import (
	"context"
	"database/sql"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// MockDependencyStore implements store.DependencyStore for testing
type MockDependencyStore struct {
	// Function fields for customizable behavior
	CreateFn            func(ctx context.Context, dep *domain.TaskDependency) error
	ListUnmetBlockingFn func(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)

	// Data for default implementation
	Dependencies []*domain.TaskDependency

	// CompletedTasks marks tasks the default ListUnmetBlocking treats as
	// satisfied.
	CompletedTasks map[uuid.UUID]bool
}

// NewMockDependencyStore creates a new mock store with initialized defaults
func NewMockDependencyStore() *MockDependencyStore {
	return &MockDependencyStore{
		CompletedTasks: make(map[uuid.UUID]bool),
	}
}

// Create implements the DependencyStore interface
func (m *MockDependencyStore) Create(ctx context.Context, dep *domain.TaskDependency) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, dep)
	}

	for _, existing := range m.Dependencies {
		if existing.TaskID == dep.TaskID && existing.DependsOnTaskID == dep.DependsOnTaskID {
			return store.ErrDependencyExists
		}
	}

	clone := *dep
	m.Dependencies = append(m.Dependencies, &clone)
	return nil
}

// ListForTask implements the DependencyStore interface
func (m *MockDependencyStore) ListForTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskDependency, error) {
	var deps []*domain.TaskDependency
	for _, dep := range m.Dependencies {
		if dep.TaskID == taskID {
			clone := *dep
			deps = append(deps, &clone)
		}
	}
	return deps, nil
}

// ListUnmetBlocking implements the DependencyStore interface
func (m *MockDependencyStore) ListUnmetBlocking(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	if m.ListUnmetBlockingFn != nil {
		return m.ListUnmetBlockingFn(ctx, taskID)
	}

	var unmet []uuid.UUID
	for _, dep := range m.Dependencies {
		if dep.TaskID == taskID && dep.Type == domain.DependencyBlocks && !m.CompletedTasks[dep.DependsOnTaskID] {
			unmet = append(unmet, dep.DependsOnTaskID)
		}
	}
	return unmet, nil
}

// ListBlocksFrom implements the DependencyStore interface
func (m *MockDependencyStore) ListBlocksFrom(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	var targets []uuid.UUID
	for _, dep := range m.Dependencies {
		if dep.TaskID == taskID && dep.Type == domain.DependencyBlocks {
			targets = append(targets, dep.DependsOnTaskID)
		}
	}
	return targets, nil
}

// WithTx implements the DependencyStore interface; the mock ignores the
// transaction and returns itself.
func (m *MockDependencyStore) WithTx(tx *sql.Tx) store.DependencyStore {
	return m
}
