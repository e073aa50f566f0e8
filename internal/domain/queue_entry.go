package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// QueueStatus represents the state of an execution queue entry.
type QueueStatus string

// Possible queue entry status values
const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusClaimed    QueueStatus = "claimed"
	QueueStatusDispatched QueueStatus = "dispatched"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"

	// QueueStatusQuarantine is reached when retries are exhausted or the
	// circuit breaker routes an entry there directly. The entry stays in
	// the active queue, still counts against the single-active-entry
	// invariant, and requires an explicit operator reset.
	QueueStatusQuarantine QueueStatus = "quarantine"
)

// DefaultMaxRetries is the retry budget applied when a dispatcher does not
// specify one.
const DefaultMaxRetries = 3

// Common validation errors for ExecutionQueueEntry
var (
	ErrEmptyEntryID       = errors.New("queue entry ID cannot be empty")
	ErrEmptyEntryTenantID = errors.New("queue entry tenant ID cannot be empty")
	ErrEmptyEntryTaskID   = errors.New("queue entry task ID cannot be empty")
	ErrInvalidQueueStatus = errors.New("invalid queue entry status")
	ErrInvalidPriority    = errors.New("queue entry priority must be between 1 and 25")
	ErrInvalidMaxRetries  = errors.New("queue entry max retries must be positive")
)

// ExecutionQueueEntry is the unit the queue subsystem owns: one dispatchable
// piece of work for exactly one task. At most one entry per task may be in
// an active status at any time; the store enforces this with a partial
// unique index on task_id.
type ExecutionQueueEntry struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	TaskID        uuid.UUID       `json:"task_id"`
	ExecutorClass ExecutorClass   `json:"executor_class"`
	Status        QueueStatus     `json:"status"`
	Priority      int             `json:"priority"`
	Context       json.RawMessage `json:"context,omitempty"`
	ClaimedBy     string          `json:"claimed_by,omitempty"`
	Result        string          `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	QueuedAt      time.Time       `json:"queued_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	DispatchedAt  *time.Time      `json:"dispatched_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewExecutionQueueEntry creates a queued entry for the given task with the
// supplied executor class, priority, and context snapshot.
// Returns an error if validation fails.
func NewExecutionQueueEntry(
	task *Task,
	class ExecutorClass,
	contextBlob json.RawMessage,
) (*ExecutionQueueEntry, error) {
	entry := &ExecutionQueueEntry{
		ID:            uuid.New(),
		TenantID:      task.TenantID,
		TaskID:        task.ID,
		ExecutorClass: class,
		Status:        QueueStatusQueued,
		Priority:      task.Priority(),
		Context:       contextBlob,
		RetryCount:    0,
		MaxRetries:    DefaultMaxRetries,
		QueuedAt:      time.Now().UTC(),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate checks if the ExecutionQueueEntry has valid data.
// Returns an error if any field fails validation.
func (e *ExecutionQueueEntry) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEntryID
	}

	if e.TenantID == uuid.Nil {
		return ErrEmptyEntryTenantID
	}

	if e.TaskID == uuid.Nil {
		return ErrEmptyEntryTaskID
	}

	if !e.ExecutorClass.IsValid() {
		return ErrInvalidExecutorClass
	}

	if !isValidQueueStatus(e.Status) {
		return ErrInvalidQueueStatus
	}

	if e.Priority < 1 || e.Priority > 25 {
		return ErrInvalidPriority
	}

	if e.MaxRetries < 1 {
		return ErrInvalidMaxRetries
	}

	return nil
}

// IsActive reports whether the entry still occupies the task's active slot.
// Quarantined entries are active: they represent work awaiting an operator
// decision and must keep further dispatch of the same task blocked.
func (e *ExecutionQueueEntry) IsActive() bool {
	switch e.Status {
	case QueueStatusQueued, QueueStatusClaimed, QueueStatusDispatched, QueueStatusQuarantine:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the entry is eligible for archival.
func (e *ExecutionQueueEntry) IsTerminal() bool {
	switch e.Status {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	default:
		return false
	}
}

// RetriesExhausted reports whether another failure must quarantine the
// entry instead of re-queueing it.
func (e *ExecutionQueueEntry) RetriesExhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// ActiveQueueStatuses returns the statuses that count against the
// single-active-entry-per-task invariant.
func ActiveQueueStatuses() []QueueStatus {
	return []QueueStatus{
		QueueStatusQueued,
		QueueStatusClaimed,
		QueueStatusDispatched,
		QueueStatusQuarantine,
	}
}

// TerminalQueueStatuses returns the statuses the archive sweep retires.
func TerminalQueueStatuses() []QueueStatus {
	return []QueueStatus{
		QueueStatusCompleted,
		QueueStatusFailed,
		QueueStatusCancelled,
	}
}

// isValidQueueStatus checks if the given status is a valid QueueStatus.
func isValidQueueStatus(status QueueStatus) bool {
	switch status {
	case QueueStatusQueued, QueueStatusClaimed, QueueStatusDispatched,
		QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled,
		QueueStatusQuarantine:
		return true
	default:
		return false
	}
}
