package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newReadyTask(t *testing.T) *Task {
	t.Helper()

	task, err := NewTask(uuid.New(), "[implement] Add retry logic", "", 4, 5)
	if err != nil {
		t.Fatalf("Expected no error creating task, got %v", err)
	}
	task.Status = TaskStatusNext

	return task
}

func TestNewExecutionQueueEntry(t *testing.T) {
	t.Parallel()

	task := newReadyTask(t)
	blob := json.RawMessage(`{"title": "[implement] Add retry logic"}`)

	entry, err := NewExecutionQueueEntry(task, ExecutorAgent, blob)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if entry.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}

	if entry.TaskID != task.ID {
		t.Errorf("Expected task ID %s, got %s", task.ID, entry.TaskID)
	}

	if entry.TenantID != task.TenantID {
		t.Errorf("Expected tenant ID %s, got %s", task.TenantID, entry.TenantID)
	}

	if entry.Status != QueueStatusQueued {
		t.Errorf("Expected status %s, got %s", QueueStatusQueued, entry.Status)
	}

	if entry.Priority != 20 {
		t.Errorf("Expected priority 20, got %d", entry.Priority)
	}

	if entry.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries %d, got %d", DefaultMaxRetries, entry.MaxRetries)
	}

	// Invalid executor class is rejected
	_, err = NewExecutionQueueEntry(task, ExecutorClass("robot"), blob)
	if err != ErrInvalidExecutorClass {
		t.Errorf("Expected error %v, got %v", ErrInvalidExecutorClass, err)
	}
}

func TestQueueEntryIsActive(t *testing.T) {
	t.Parallel()

	entry, err := NewExecutionQueueEntry(newReadyTask(t), ExecutorAgent, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	activeStatuses := []QueueStatus{
		QueueStatusQueued, QueueStatusClaimed, QueueStatusDispatched, QueueStatusQuarantine,
	}
	for _, status := range activeStatuses {
		entry.Status = status
		if !entry.IsActive() {
			t.Errorf("Expected status %s to be active", status)
		}
		if entry.IsTerminal() {
			t.Errorf("Expected status %s to not be terminal", status)
		}
	}

	terminalStatuses := []QueueStatus{
		QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled,
	}
	for _, status := range terminalStatuses {
		entry.Status = status
		if entry.IsActive() {
			t.Errorf("Expected status %s to not be active", status)
		}
		if !entry.IsTerminal() {
			t.Errorf("Expected status %s to be terminal", status)
		}
	}
}

func TestQueueEntryRetriesExhausted(t *testing.T) {
	t.Parallel()

	entry, err := NewExecutionQueueEntry(newReadyTask(t), ExecutorAgent, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	entry.MaxRetries = 3

	entry.RetryCount = 2
	if entry.RetriesExhausted() {
		t.Error("Expected retries not exhausted at retry_count=2, max=3")
	}

	entry.RetryCount = 3
	if !entry.RetriesExhausted() {
		t.Error("Expected retries exhausted at retry_count=3, max=3")
	}
}

func TestParseExecutorClass(t *testing.T) {
	t.Parallel()

	cases := map[string]ExecutorClass{
		"agent":          ExecutorAgent,
		"ai":             ExecutorAgent,
		"claude-code":    ExecutorAgent,
		"human_assisted": ExecutorHumanAssisted,
		"human-ai":       ExecutorHumanAssisted,
		"claude-ai":      ExecutorHumanAssisted,
		"human_only":     ExecutorHumanOnly,
		"human":          ExecutorHumanOnly,
		"de-agent":       ExecutorHumanOnly,
	}

	for input, want := range cases {
		got, err := ParseExecutorClass(input)
		if err != nil {
			t.Errorf("ParseExecutorClass(%q) returned error %v", input, err)
		}
		if got != want {
			t.Errorf("ParseExecutorClass(%q) = %s, want %s", input, got, want)
		}
	}

	if _, err := ParseExecutorClass("robot"); err != ErrInvalidExecutorClass {
		t.Errorf("Expected error %v, got %v", ErrInvalidExecutorClass, err)
	}
}
