package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// MockDispatchLogStore implements store.DispatchLogStore for testing
type MockDispatchLogStore struct {
	// Function fields for customizable behavior
	AppendFn           func(ctx context.Context, entry *domain.DispatchLogEntry) error
	CountQuarantinesFn func(ctx context.Context, taskID uuid.UUID, since time.Time) (int, error)

	// Data for default implementation
	Log         []*domain.DispatchLogEntry
	AppendError error
}

// NewMockDispatchLogStore creates a new mock store with initialized defaults
func NewMockDispatchLogStore() *MockDispatchLogStore {
	return &MockDispatchLogStore{}
}

// Append implements the DispatchLogStore interface
func (m *MockDispatchLogStore) Append(ctx context.Context, entry *domain.DispatchLogEntry) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, entry)
	}

	if m.AppendError != nil {
		return m.AppendError
	}

	clone := *entry
	m.Log = append(m.Log, &clone)
	return nil
}

// CountQuarantines implements the DispatchLogStore interface
func (m *MockDispatchLogStore) CountQuarantines(ctx context.Context, taskID uuid.UUID, since time.Time) (int, error) {
	if m.CountQuarantinesFn != nil {
		return m.CountQuarantinesFn(ctx, taskID, since)
	}

	count := 0
	for _, entry := range m.Log {
		if entry.TaskID == taskID && entry.Action == domain.DispatchActionQuarantined && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// DetachEntry implements the DispatchLogStore interface
func (m *MockDispatchLogStore) DetachEntry(ctx context.Context, entryID uuid.UUID) error {
	for _, entry := range m.Log {
		if entry.QueueEntryID != nil && *entry.QueueEntryID == entryID {
			entry.QueueEntryID = nil
		}
	}
	return nil
}

// ListForTask implements the DispatchLogStore interface
func (m *MockDispatchLogStore) ListForTask(ctx context.Context, taskID uuid.UUID, limit int) ([]*domain.DispatchLogEntry, error) {
	var entries []*domain.DispatchLogEntry
	for i := len(m.Log) - 1; i >= 0; i-- {
		if m.Log[i].TaskID == taskID {
			clone := *m.Log[i]
			entries = append(entries, &clone)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
	}
	return entries, nil
}

// ActionsFor returns the recorded actions for a task in append order.
// Test helper, not part of the store interface.
func (m *MockDispatchLogStore) ActionsFor(taskID uuid.UUID) []domain.DispatchAction {
	var actions []domain.DispatchAction
	for _, entry := range m.Log {
		if entry.TaskID == taskID {
			actions = append(actions, entry.Action)
		}
	}
	return actions
}

// WithTx implements the DispatchLogStore interface; the mock ignores the
// transaction and returns itself.
func (m *MockDispatchLogStore) WithTx(tx *sql.Tx) store.DispatchLogStore {
	return m
}
