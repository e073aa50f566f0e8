// Package executor defines the contract automated executors implement and
// the runner that drains the queue through it.
package executor

import (
	"context"
	"encoding/json"
)

// Result is what an executor hands back for a successful execution.
type Result struct {
	// Content is the human-readable outcome written to the queue entry.
	Content string

	// Model identifies the backend that produced the result, when known.
	Model string
}

// Executor performs the work described by a queue entry's context
// snapshot. Implementations must be safe for concurrent use.
type Executor interface {
	// Execute runs the work. The contextBlob is the snapshot taken at
	// dispatch time; executors never read the task tables directly.
	// A returned error counts as a failed attempt against the entry's
	// retry budget.
	Execute(ctx context.Context, contextBlob json.RawMessage) (*Result, error)

	// Healthy reports whether the executor can currently accept work.
	// The runner probes once per batch and skips the whole batch when the
	// backend is down, so entries keep their retry budget for real
	// execution failures.
	Healthy(ctx context.Context) bool
}
