package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/service/queue"
	"github.com/cortexops/dispatch/internal/store"
)

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// Claimant is the identity written to claimed_by. Each runner instance
	// needs a distinct one.
	Claimant string

	// BatchLimit caps how many entries one RunBatch cycle processes.
	BatchLimit int

	// StuckClaimAge is how long a claim may sit without resolution before
	// ReconcileStuck treats its holder as crashed.
	StuckClaimAge time.Duration
}

// BatchStats summarizes one runner cycle.
type BatchStats struct {
	Listed    int `json:"listed"`
	Claimed   int `json:"claimed"`
	LostRaces int `json:"lost_races"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
}

// Runner drains agent-class queue entries through an Executor. Claims go
// through the compare-and-swap in the queue service, so multiple runner
// instances can poll the same queue without double execution.
type Runner struct {
	executor Executor
	queue    *queue.Service
	entries  store.QueueStore
	cfg      RunnerConfig
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(
	exec Executor,
	queueSvc *queue.Service,
	entries store.QueueStore,
	cfg RunnerConfig,
	log *slog.Logger,
) *Runner {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for executor.Runner")
	}
	if cfg.Claimant == "" {
		cfg.Claimant = "agent-runner"
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 25
	}
	if cfg.StuckClaimAge <= 0 {
		cfg.StuckClaimAge = 30 * time.Minute
	}

	return &Runner{
		executor: exec,
		queue:    queueSvc,
		entries:  entries,
		cfg:      cfg,
		logger:   log.With(slog.String("component", "executor_runner")),
	}
}

// RunBatch claims and executes up to BatchLimit queued agent entries.
func (r *Runner) RunBatch(ctx context.Context) (*BatchStats, error) {
	return r.RunBatchFor(ctx, domain.ExecutorAgent, r.cfg.BatchLimit)
}

// RunBatchFor claims and executes up to limit queued entries of the given
// class. A zero class or limit falls back to the agent class and the
// configured batch limit.
//
// The executor is health-probed once up front; when the backend is down
// the batch is skipped entirely so transient outages do not burn retry
// budgets.
func (r *Runner) RunBatchFor(ctx context.Context, class domain.ExecutorClass, limit int) (*BatchStats, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)
	stats := &BatchStats{}

	if class == "" {
		class = domain.ExecutorAgent
	}
	if limit <= 0 {
		limit = r.cfg.BatchLimit
	}

	if !r.executor.Healthy(ctx) {
		log.Warn("executor unhealthy, skipping batch")
		return stats, nil
	}

	queued, err := r.entries.ListQueued(ctx, class, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued entries: %w", err)
	}
	stats.Listed = len(queued)

	for _, entry := range queued {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		claimed, err := r.queue.Claim(ctx, entry.ID, r.cfg.Claimant)
		if err != nil {
			return stats, err
		}
		if !claimed {
			stats.LostRaces++
			continue
		}
		stats.Claimed++

		if _, err := r.queue.MarkDispatched(ctx, entry.ID); err != nil {
			return stats, err
		}

		r.runOne(ctx, entry, stats)
	}

	log.Info("runner batch finished",
		slog.Int("listed", stats.Listed),
		slog.Int("claimed", stats.Claimed),
		slog.Int("completed", stats.Completed),
		slog.Int("failed", stats.Failed))

	return stats, nil
}

// runOne executes a single claimed entry and resolves it. Executor errors
// and panics are converted into Fail calls rather than aborting the batch.
func (r *Runner) runOne(ctx context.Context, entry *domain.ExecutionQueueEntry, stats *BatchStats) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	result, err := func() (res *Result, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("executor panic: %v", rec)
			}
		}()
		return r.executor.Execute(ctx, entry.Context)
	}()
	if err == nil && result == nil {
		err = errors.New("executor returned no result")
	}

	if err != nil {
		stats.Failed++
		if failErr := r.queue.Fail(ctx, entry.ID, err.Error()); failErr != nil {
			log.Error("failed to record execution failure",
				slog.String("entry_id", entry.ID.String()),
				slog.String("error", failErr.Error()))
		}
		return
	}

	err = r.queue.Complete(ctx, entry.ID, result.Content)
	switch {
	case err == nil:
		stats.Completed++
	case errors.Is(err, queue.ErrSuspectResult):
		// Already routed to the failure path by the queue service.
		stats.Rejected++
	case errors.Is(err, queue.ErrResultTooShort):
		stats.Rejected++
		if failErr := r.queue.Fail(ctx, entry.ID, err.Error()); failErr != nil {
			log.Error("failed to record short-result failure",
				slog.String("entry_id", entry.ID.String()),
				slog.String("error", failErr.Error()))
		}
	default:
		log.Error("failed to complete entry",
			slog.String("entry_id", entry.ID.String()),
			slog.String("error", err.Error()))
	}
}

// ReconcileStuck fails claims that outlived StuckClaimAge, returning them
// to the retry path. Run at startup and periodically so a crashed runner
// cannot strand entries in claimed forever.
func (r *Runner) ReconcileStuck(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	stuck, err := r.entries.ListStuck(ctx, r.cfg.StuckClaimAge)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck entries: %w", err)
	}

	reconciled := 0
	for _, entry := range stuck {
		reason := fmt.Sprintf("claim by %s expired after %s", entry.ClaimedBy, r.cfg.StuckClaimAge)
		if err := r.queue.Fail(ctx, entry.ID, reason); err != nil {
			return reconciled, err
		}
		reconciled++
	}

	if reconciled > 0 {
		log.Warn("reconciled stuck claims", slog.Int("count", reconciled))
	}

	return reconciled, nil
}
