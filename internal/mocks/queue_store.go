package mocks

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// MockQueueStore implements store.QueueStore for testing
type MockQueueStore struct {
	// Function fields for customizable behavior
	InsertFn         func(ctx context.Context, entry *domain.ExecutionQueueEntry) error
	GetByIDFn        func(ctx context.Context, id uuid.UUID) (*domain.ExecutionQueueEntry, error)
	ClaimFn          func(ctx context.Context, id uuid.UUID, claimant string) (bool, error)
	UpdateFn         func(ctx context.Context, entry *domain.ExecutionQueueEntry) error
	HasActiveEntryFn func(ctx context.Context, taskID uuid.UUID) (bool, error)
	ListQueuedFn     func(ctx context.Context, class domain.ExecutorClass, limit int) ([]*domain.ExecutionQueueEntry, error)

	// Data for default implementation
	Entries     map[uuid.UUID]*domain.ExecutionQueueEntry
	InsertError error
	UpdateError error
}

// NewMockQueueStore creates a new mock store with initialized defaults
func NewMockQueueStore() *MockQueueStore {
	return &MockQueueStore{
		Entries: make(map[uuid.UUID]*domain.ExecutionQueueEntry),
	}
}

// Insert implements the QueueStore interface
func (m *MockQueueStore) Insert(ctx context.Context, entry *domain.ExecutionQueueEntry) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, entry)
	}

	if m.InsertError != nil {
		return m.InsertError
	}

	for _, existing := range m.Entries {
		if existing.TaskID == entry.TaskID && existing.IsActive() {
			return store.ErrActiveEntryExists
		}
	}

	clone := *entry
	m.Entries[entry.ID] = &clone
	return nil
}

// GetByID implements the QueueStore interface
func (m *MockQueueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionQueueEntry, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	entry, exists := m.Entries[id]
	if !exists {
		return nil, store.ErrEntryNotFound
	}

	clone := *entry
	return &clone, nil
}

// Claim implements the QueueStore interface
func (m *MockQueueStore) Claim(ctx context.Context, id uuid.UUID, claimant string) (bool, error) {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, id, claimant)
	}

	entry, exists := m.Entries[id]
	if !exists || entry.Status != domain.QueueStatusQueued {
		return false, nil
	}

	now := time.Now().UTC()
	entry.Status = domain.QueueStatusClaimed
	entry.ClaimedBy = claimant
	entry.ClaimedAt = &now
	return true, nil
}

// MarkDispatched implements the QueueStore interface
func (m *MockQueueStore) MarkDispatched(ctx context.Context, id uuid.UUID) (bool, error) {
	entry, exists := m.Entries[id]
	if !exists || entry.Status != domain.QueueStatusClaimed {
		return false, nil
	}

	now := time.Now().UTC()
	entry.Status = domain.QueueStatusDispatched
	entry.DispatchedAt = &now
	return true, nil
}

// Update implements the QueueStore interface
func (m *MockQueueStore) Update(ctx context.Context, entry *domain.ExecutionQueueEntry) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, entry)
	}

	if m.UpdateError != nil {
		return m.UpdateError
	}

	if _, exists := m.Entries[entry.ID]; !exists {
		return store.ErrEntryNotFound
	}

	clone := *entry
	m.Entries[entry.ID] = &clone
	return nil
}

// Delete implements the QueueStore interface
func (m *MockQueueStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, exists := m.Entries[id]; !exists {
		return store.ErrEntryNotFound
	}

	delete(m.Entries, id)
	return nil
}

// HasActiveEntry implements the QueueStore interface
func (m *MockQueueStore) HasActiveEntry(ctx context.Context, taskID uuid.UUID) (bool, error) {
	if m.HasActiveEntryFn != nil {
		return m.HasActiveEntryFn(ctx, taskID)
	}

	for _, entry := range m.Entries {
		if entry.TaskID == taskID && entry.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// ListQueued implements the QueueStore interface
func (m *MockQueueStore) ListQueued(ctx context.Context, class domain.ExecutorClass, limit int) ([]*domain.ExecutionQueueEntry, error) {
	if m.ListQueuedFn != nil {
		return m.ListQueuedFn(ctx, class, limit)
	}

	var queued []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if entry.Status == domain.QueueStatusQueued && entry.ExecutorClass == class {
			clone := *entry
			queued = append(queued, &clone)
		}
	}

	sort.Slice(queued, func(i, j int) bool {
		if queued[i].Priority != queued[j].Priority {
			return queued[i].Priority > queued[j].Priority
		}
		return queued[i].QueuedAt.Before(queued[j].QueuedAt)
	})

	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

// ListActiveByTask implements the QueueStore interface
func (m *MockQueueStore) ListActiveByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.ExecutionQueueEntry, error) {
	var active []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if entry.TaskID == taskID && entry.IsActive() {
			clone := *entry
			active = append(active, &clone)
		}
	}
	return active, nil
}

// ListActive implements the QueueStore interface
func (m *MockQueueStore) ListActive(ctx context.Context) ([]*domain.ExecutionQueueEntry, error) {
	var active []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if entry.IsActive() {
			clone := *entry
			active = append(active, &clone)
		}
	}
	return active, nil
}

// ListQuarantined implements the QueueStore interface
func (m *MockQueueStore) ListQuarantined(ctx context.Context, tenantID uuid.UUID) ([]*domain.ExecutionQueueEntry, error) {
	var quarantined []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if entry.Status != domain.QueueStatusQuarantine {
			continue
		}
		if tenantID != uuid.Nil && entry.TenantID != tenantID {
			continue
		}
		clone := *entry
		quarantined = append(quarantined, &clone)
	}
	return quarantined, nil
}

// ListTerminalBefore implements the QueueStore interface
func (m *MockQueueStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*domain.ExecutionQueueEntry, error) {
	var terminal []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if !entry.IsTerminal() {
			continue
		}
		if entry.CompletedAt != nil && entry.CompletedAt.After(cutoff) {
			continue
		}
		clone := *entry
		terminal = append(terminal, &clone)
	}
	return terminal, nil
}

// ListStuck implements the QueueStore interface
func (m *MockQueueStore) ListStuck(ctx context.Context, olderThan time.Duration) ([]*domain.ExecutionQueueEntry, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var stuck []*domain.ExecutionQueueEntry
	for _, entry := range m.Entries {
		if entry.Status != domain.QueueStatusClaimed && entry.Status != domain.QueueStatusDispatched {
			continue
		}
		if entry.ClaimedAt == nil || entry.ClaimedAt.After(cutoff) {
			continue
		}
		clone := *entry
		stuck = append(stuck, &clone)
	}
	return stuck, nil
}

// CountByStatus implements the QueueStore interface
func (m *MockQueueStore) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[domain.QueueStatus]int, error) {
	counts := make(map[domain.QueueStatus]int)
	for _, entry := range m.Entries {
		if tenantID != uuid.Nil && entry.TenantID != tenantID {
			continue
		}
		counts[entry.Status]++
	}
	return counts, nil
}

// CountByClass implements the QueueStore interface
func (m *MockQueueStore) CountByClass(ctx context.Context, tenantID uuid.UUID) (map[domain.ExecutorClass]int, error) {
	counts := make(map[domain.ExecutorClass]int)
	for _, entry := range m.Entries {
		if tenantID != uuid.Nil && entry.TenantID != tenantID {
			continue
		}
		counts[entry.ExecutorClass]++
	}
	return counts, nil
}

// WithTx implements the QueueStore interface; the mock ignores the
// transaction and returns itself.
func (m *MockQueueStore) WithTx(tx *sql.Tx) store.QueueStore {
	return m
}
