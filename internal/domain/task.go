package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the workflow state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusInbox     TaskStatus = "inbox"
	TaskStatusNext      TaskStatus = "next"
	TaskStatusScheduled TaskStatus = "scheduled"
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusSomeday   TaskStatus = "someday"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"

	// TaskStatusBlocked is set by the circuit breaker when a task has been
	// quarantined too many times. It is terminal and non-retryable; only an
	// operator reset moves the task out of it.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskTenantID = errors.New("task tenant ID cannot be empty")
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidUrgency    = errors.New("task urgency must be between 1 and 5")
	ErrInvalidImportance = errors.New("task importance must be between 1 and 5")
)

// Task represents a unit of work owned by the task-management layer.
// Title and Description may be encrypted at rest; the queue subsystem
// treats them as opaque strings and decrypts only to classify or to build
// executor context.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Urgency     int        `json:"urgency"`
	Importance  int        `json:"importance"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a new Task in inbox status with the given tenant, title,
// and urgency/importance scores. Returns an error if validation fails.
func NewTask(tenantID uuid.UUID, title, description string, urgency, importance int) (*Task, error) {
	task := &Task{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Title:       title,
		Description: description,
		Status:      TaskStatusInbox,
		Urgency:     urgency,
		Importance:  importance,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.TenantID == uuid.Nil {
		return ErrEmptyTaskTenantID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.Urgency < 1 || t.Urgency > 5 {
		return ErrInvalidUrgency
	}

	if t.Importance < 1 || t.Importance > 5 {
		return ErrInvalidImportance
	}

	return nil
}

// Priority derives the dispatch priority as urgency multiplied by importance.
// The result is in the range 1-25; higher means dispatched sooner.
func (t *Task) Priority() int {
	return t.Urgency * t.Importance
}

// IsReady reports whether the task is eligible for dispatch consideration:
// in next status and not soft-deleted.
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusNext && t.DeletedAt == nil
}

// IsTerminal reports whether the task has reached a final workflow state.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusCancelled, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusInbox, TaskStatusNext, TaskStatusScheduled, TaskStatusWaiting,
		TaskStatusSomeday, TaskStatusCompleted, TaskStatusCancelled, TaskStatusBlocked:
		return true
	default:
		return false
	}
}
