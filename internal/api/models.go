package api

import (
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/google/uuid"
)

// ClaimRequest is the payload for claiming a queue entry.
type ClaimRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required,min=1,max=128"`
}

// ClaimResponse reports whether the claim succeeded.
type ClaimResponse struct {
	Claimed bool      `json:"claimed"`
	EntryID uuid.UUID `json:"entry_id"`
}

// CompleteRequest is the payload for completing a queue entry.
type CompleteRequest struct {
	Result string `json:"result" validate:"required"`
}

// FailRequest is the payload for recording a failed execution attempt.
type FailRequest struct {
	Error string `json:"error" validate:"required"`
}

// CancelRequest is the payload for cancelling a task's queue entries.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CancelResponse reports how many entries were cancelled.
type CancelResponse struct {
	Cancelled int `json:"cancelled"`
}

// ResetResponse reports how many quarantined entries were re-queued.
type ResetResponse struct {
	Reset int `json:"reset"`
}

// DependencyRequest is the payload for adding a task dependency.
type DependencyRequest struct {
	DependsOnTaskID uuid.UUID `json:"depends_on_task_id" validate:"required"`
	Type            string    `json:"type"               validate:"required,oneof=blocks suggests related"`
}

// CleanupRequest selects a sweep mode.
type CleanupRequest struct {
	Mode   string `json:"mode"    validate:"required,oneof=duplicates stale sync orphans all"`
	DryRun bool   `json:"dry_run"`
}

// RunExecutorRequest narrows an on-demand runner batch. Both fields are
// optional; omitted values fall back to the agent class and the
// configured batch limit.
type RunExecutorRequest struct {
	ExecutorClass string `json:"executor_class" validate:"omitempty,oneof=agent human_assisted human_only"`
	Limit         int    `json:"limit"          validate:"omitempty,gte=1,lte=1000"`
}

// EntryResponse is the public shape of a queue entry.
type EntryResponse struct {
	ID            uuid.UUID            `json:"id"`
	TaskID        uuid.UUID            `json:"task_id"`
	ExecutorClass domain.ExecutorClass `json:"executor_class"`
	Status        domain.QueueStatus   `json:"status"`
	Priority      int                  `json:"priority"`
	RetryCount    int                  `json:"retry_count"`
	MaxRetries    int                  `json:"max_retries"`
}

// NewEntryResponse converts a domain entry to its public shape.
func NewEntryResponse(entry *domain.ExecutionQueueEntry) EntryResponse {
	return EntryResponse{
		ID:            entry.ID,
		TaskID:        entry.TaskID,
		ExecutorClass: entry.ExecutorClass,
		Status:        entry.Status,
		Priority:      entry.Priority,
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
	}
}
