package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DispatchAction names a queue entry state transition recorded in the
// dispatch log.
type DispatchAction string

// Possible dispatch log actions
const (
	DispatchActionQueued      DispatchAction = "queued"
	DispatchActionClaimed     DispatchAction = "claimed"
	DispatchActionDispatched  DispatchAction = "dispatched"
	DispatchActionCompleted   DispatchAction = "completed"
	DispatchActionFailed      DispatchAction = "failed"
	DispatchActionRetryQueued DispatchAction = "retry_queued"
	DispatchActionQuarantined DispatchAction = "quarantined"
	DispatchActionCancelled   DispatchAction = "cancelled"
)

// DispatchLogEntry is an append-only audit record of a queue entry state
// transition. Rows are never mutated; when the parent queue entry is
// archived its reference is nulled so the audit trail outlives the entry.
type DispatchLogEntry struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	QueueEntryID *uuid.UUID      `json:"queue_entry_id,omitempty"`
	TaskID       uuid.UUID       `json:"task_id"`
	Action       DispatchAction  `json:"action"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewDispatchLogEntry creates an audit record for the given entry and action.
func NewDispatchLogEntry(
	entry *ExecutionQueueEntry,
	action DispatchAction,
	details json.RawMessage,
) *DispatchLogEntry {
	entryID := entry.ID
	return &DispatchLogEntry{
		ID:           uuid.New(),
		TenantID:     entry.TenantID,
		QueueEntryID: &entryID,
		TaskID:       entry.TaskID,
		Action:       action,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
}
