package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/metrics"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// CircuitBreaker stops a task from cycling through the queue forever.
// A task that has been quarantined Threshold times within Window is moved
// to blocked and stays there until an operator resets it.
//
// The trip count is derived from the dispatch log rather than a counter on
// the task, so quarantines older than the window age out for free and the
// audit trail stays the single source of truth.
type CircuitBreaker struct {
	logs      store.DispatchLogStore
	tasks     store.TaskStore
	threshold int
	window    time.Duration
	logger    *slog.Logger
}

// NewCircuitBreaker creates a breaker with the given trip threshold and
// look-back window.
func NewCircuitBreaker(
	logs store.DispatchLogStore,
	tasks store.TaskStore,
	threshold int,
	window time.Duration,
	log *slog.Logger,
) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	return &CircuitBreaker{
		logs:      logs,
		tasks:     tasks,
		threshold: threshold,
		window:    window,
		logger:    log.With(slog.String("component", "circuit_breaker")),
	}
}

// ShouldTrip reports whether the task has reached its quarantine budget
// for the current window.
func (b *CircuitBreaker) ShouldTrip(ctx context.Context, taskID uuid.UUID) (bool, error) {
	since := time.Now().UTC().Add(-b.window)
	count, err := b.logs.CountQuarantines(ctx, taskID, since)
	if err != nil {
		return false, fmt.Errorf("failed to count quarantines: %w", err)
	}
	return count >= b.threshold, nil
}

// Trip moves the task to blocked so the dispatcher stops considering it.
func (b *CircuitBreaker) Trip(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, b.logger)

	if err := b.tasks.UpdateStatus(ctx, taskID, domain.TaskStatusBlocked, nil); err != nil {
		return fmt.Errorf("failed to block task: %w", err)
	}

	metrics.RecordBreakerTrip()
	log.Warn("circuit breaker tripped, task blocked",
		slog.String("task_id", taskID.String()),
		slog.Int("threshold", b.threshold),
		slog.Duration("window", b.window))

	return nil
}
