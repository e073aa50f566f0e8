package domain

import (
	"time"
)

// ExecutionArchiveEntry is a terminal snapshot of a queue entry, written
// once by the archive sweep and never updated.
type ExecutionArchiveEntry struct {
	ExecutionQueueEntry
	ArchivedAt time.Time `json:"archived_at"`
}

// NewExecutionArchiveEntry snapshots a terminal queue entry for archival.
func NewExecutionArchiveEntry(entry *ExecutionQueueEntry) *ExecutionArchiveEntry {
	return &ExecutionArchiveEntry{
		ExecutionQueueEntry: *entry,
		ArchivedAt:          time.Now().UTC(),
	}
}
