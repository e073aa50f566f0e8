// Package dispatch scans ready tasks and feeds the execution queue:
// dependency gating, circuit breaking, executor classification, and entry
// creation with a context snapshot. Each tenant is processed inside its
// own failure boundary so one bad tenant cannot starve the rest.
package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cortexops/dispatch/internal/classify"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/metrics"
	"github.com/cortexops/dispatch/internal/platform/crypto"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// Dispatch outcome errors for single-task dispatch
var (
	// ErrTaskNotReady is returned when the task is not in a dispatchable
	// workflow state.
	ErrTaskNotReady = errors.New("task is not ready for dispatch")

	// ErrUnmetDependencies is returned when a blocking prerequisite has not
	// completed.
	ErrUnmetDependencies = errors.New("task has unmet blocking dependencies")

	// ErrTaskBlocked is returned when the circuit breaker has blocked the
	// task (or blocks it during this dispatch attempt).
	ErrTaskBlocked = errors.New("task is blocked by the circuit breaker")
)

// entryContext is the execution context snapshot embedded in a queue
// entry. Sensitive fields are decrypted before snapshotting so executors
// never need key material.
type entryContext struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Urgency     int    `json:"urgency"`
	Importance  int    `json:"importance"`
	Priority    int    `json:"priority"`
}

// SkippedTask records why a ready task produced no queue entry.
type SkippedTask struct {
	TaskID uuid.UUID `json:"task_id"`
	Reason string    `json:"reason"`
}

// Stats summarizes one dispatch cycle.
type Stats struct {
	TenantsScanned int                          `json:"tenants_scanned"`
	TasksSeen      int                          `json:"tasks_seen"`
	Queued         map[domain.ExecutorClass]int `json:"queued"`
	SkippedActive  int                          `json:"skipped_active"`
	SkippedDeps    int                          `json:"skipped_dependencies"`
	Blocked        int                          `json:"blocked"`
	Errors         int                          `json:"errors"`
	Skipped        []SkippedTask                `json:"skipped"`
}

// skip counts a gated task under the given counter and records it in the
// per-task skipped list.
func (s *Stats) skip(counter *int, taskID uuid.UUID, reason string) {
	*counter++
	s.Skipped = append(s.Skipped, SkippedTask{TaskID: taskID, Reason: reason})
}

// Dispatcher owns the ready-task scan.
type Dispatcher struct {
	db         *sql.DB
	tasks      store.TaskStore
	entries    store.QueueStore
	logs       store.DispatchLogStore
	checker    *DependencyChecker
	breaker    *CircuitBreaker
	decrypt    crypto.Decryptor
	maxRetries int
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. maxRetries is the retry budget
// stamped onto new entries; non-positive values fall back to the domain
// default.
func NewDispatcher(
	db *sql.DB,
	tasks store.TaskStore,
	entries store.QueueStore,
	logs store.DispatchLogStore,
	checker *DependencyChecker,
	breaker *CircuitBreaker,
	decrypt crypto.Decryptor,
	maxRetries int,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for dispatch.Dispatcher")
	}
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	return &Dispatcher{
		db:         db,
		tasks:      tasks,
		entries:    entries,
		logs:       logs,
		checker:    checker,
		breaker:    breaker,
		decrypt:    decrypt,
		maxRetries: maxRetries,
		logger:     log.With(slog.String("component", "dispatcher")),
	}
}

// DispatchReady scans every tenant's ready tasks and queues the eligible
// ones. A panic or error inside one tenant's scan is contained there; the
// cycle continues with the next tenant and the stats report the failure.
func (d *Dispatcher) DispatchReady(ctx context.Context) (*Stats, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	tenants, err := d.tasks.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	stats := newStats()
	for _, tenantID := range tenants {
		stats.TenantsScanned++
		if err := d.dispatchTenant(ctx, tenantID, stats); err != nil {
			stats.Errors++
			log.Error("tenant dispatch failed",
				slog.String("tenant_id", tenantID.String()),
				slog.String("error", err.Error()))
		}
	}

	log.Info("dispatch cycle finished",
		slog.Int("tenants", stats.TenantsScanned),
		slog.Int("tasks_seen", stats.TasksSeen),
		slog.Int("blocked", stats.Blocked),
		slog.Int("errors", stats.Errors))

	return stats, nil
}

// DispatchTenant scans one tenant's ready tasks.
func (d *Dispatcher) DispatchTenant(ctx context.Context, tenantID uuid.UUID) (*Stats, error) {
	stats := newStats()
	stats.TenantsScanned = 1
	if err := d.dispatchTenant(ctx, tenantID, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// dispatchTenant is the per-tenant failure boundary. A panic below it is
// converted into an error so DispatchReady keeps going.
func (d *Dispatcher) dispatchTenant(ctx context.Context, tenantID uuid.UUID, stats *Stats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during tenant dispatch: %v", r)
		}
	}()

	log := logger.FromContextOrDefault(ctx, d.logger)

	ready, err := d.tasks.ListReady(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list ready tasks: %w", err)
	}

	for _, task := range ready {
		stats.TasksSeen++

		entry, err := d.dispatchTask(ctx, task)
		switch {
		case err == nil:
			stats.Queued[entry.ExecutorClass]++
		case errors.Is(err, store.ErrActiveEntryExists):
			stats.skip(&stats.SkippedActive, task.ID, "active entry exists")
		case errors.Is(err, ErrUnmetDependencies):
			stats.skip(&stats.SkippedDeps, task.ID, "unmet blocking dependencies")
		case errors.Is(err, ErrTaskBlocked):
			stats.skip(&stats.Blocked, task.ID, "circuit breaker tripped")
		default:
			stats.Errors++
			log.Error("task dispatch failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// DispatchOne queues a single task immediately, bypassing the cycle but
// not the gates: the single-active-entry invariant, dependency gating,
// and the circuit breaker all still apply.
func (d *Dispatcher) DispatchOne(ctx context.Context, tenantID, taskID uuid.UUID) (*domain.ExecutionQueueEntry, error) {
	task, err := d.tasks.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsReady() {
		if task.Status == domain.TaskStatusBlocked {
			return nil, ErrTaskBlocked
		}
		return nil, fmt.Errorf("%w: status is %s", ErrTaskNotReady, task.Status)
	}

	return d.dispatchTask(ctx, task)
}

// dispatchTask runs the gate sequence for one ready task and, when all
// gates pass, inserts the queue entry and its audit record in one
// transaction.
func (d *Dispatcher) dispatchTask(ctx context.Context, task *domain.Task) (*domain.ExecutionQueueEntry, error) {
	// Cheapest gate first; the unique index still backstops races.
	active, err := d.entries.HasActiveEntry(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, store.ErrActiveEntryExists
	}

	unmet, err := d.checker.HasUnmetDependencies(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if unmet {
		return nil, ErrUnmetDependencies
	}

	trip, err := d.breaker.ShouldTrip(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if trip {
		if err := d.breaker.Trip(ctx, task.ID); err != nil {
			return nil, err
		}
		return nil, ErrTaskBlocked
	}

	title := d.decrypt.TryDecrypt(task.TenantID, task.Title)
	description := d.decrypt.TryDecrypt(task.TenantID, task.Description)
	class := classify.Classify(title)

	snapshot, err := json.Marshal(entryContext{
		TaskID:      task.ID.String(),
		Title:       title,
		Description: description,
		Urgency:     task.Urgency,
		Importance:  task.Importance,
		Priority:    task.Priority(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build context snapshot: %w", err)
	}

	entry, err := domain.NewExecutionQueueEntry(task, class, snapshot)
	if err != nil {
		return nil, err
	}
	entry.MaxRetries = d.maxRetries

	err = store.RunInTransaction(ctx, d.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := d.entries.WithTx(tx).Insert(ctx, entry); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]string{"executor_class": string(class)})
		return d.logs.WithTx(tx).Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionQueued, details))
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordEntryQueued(class)
	return entry, nil
}

func newStats() *Stats {
	return &Stats{
		Queued:  make(map[domain.ExecutorClass]int),
		Skipped: []SkippedTask{},
	}
}
