package mocks

import (
	"context"
	"database/sql"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// MockArchiveStore implements store.ArchiveStore for testing
type MockArchiveStore struct {
	// Function fields for customizable behavior
	InsertFn func(ctx context.Context, entry *domain.ExecutionArchiveEntry) error

	// Data for default implementation
	Archived []*domain.ExecutionArchiveEntry
}

// NewMockArchiveStore creates a new mock store with initialized defaults
func NewMockArchiveStore() *MockArchiveStore {
	return &MockArchiveStore{}
}

// Insert implements the ArchiveStore interface
func (m *MockArchiveStore) Insert(ctx context.Context, entry *domain.ExecutionArchiveEntry) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, entry)
	}

	clone := *entry
	m.Archived = append(m.Archived, &clone)
	return nil
}

// CountForTask implements the ArchiveStore interface
func (m *MockArchiveStore) CountForTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	count := 0
	for _, entry := range m.Archived {
		if entry.TaskID == taskID {
			count++
		}
	}
	return count, nil
}

// WithTx implements the ArchiveStore interface; the mock ignores the
// transaction and returns itself.
func (m *MockArchiveStore) WithTx(tx *sql.Tx) store.ArchiveStore {
	return m
}
