package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/internal/service/dispatch"
	"github.com/cortexops/dispatch/internal/service/executor"
	"github.com/cortexops/dispatch/internal/service/sweep"
)

// scheduler drives the recurring queue work: the dispatch scan, the
// executor batch with claim reconciliation, and the archive sweep.
type scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func newScheduler(
	cfg config.QueueConfig,
	dispatcher *dispatch.Dispatcher,
	runner *executor.Runner,
	sweeper *sweep.Sweeper,
	log *slog.Logger,
) (*scheduler, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	schedLogger := log.With(slog.String("component", "scheduler"))

	_, err := c.AddFunc(cfg.DispatchSchedule, func() {
		ctx := context.Background()
		stats, err := dispatcher.DispatchReady(ctx)
		if err != nil {
			schedLogger.Error("dispatch cycle failed", slog.Any("error", err))
			return
		}
		schedLogger.Info("dispatch cycle finished",
			slog.Int("tenants_scanned", stats.TenantsScanned),
			slog.Int("tasks_seen", stats.TasksSeen),
			slog.Int("skipped_active", stats.SkippedActive),
			slog.Int("skipped_dependencies", stats.SkippedDeps),
			slog.Int("blocked", stats.Blocked),
			slog.Int("errors", stats.Errors))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", cfg.DispatchSchedule, err)
	}

	_, err = c.AddFunc(cfg.RunnerSchedule, func() {
		ctx := context.Background()
		if n, err := runner.ReconcileStuck(ctx); err != nil {
			schedLogger.Error("claim reconciliation failed", slog.Any("error", err))
		} else if n > 0 {
			schedLogger.Info("reconciled stuck claims", slog.Int("count", n))
		}

		stats, err := runner.RunBatch(ctx)
		if err != nil {
			schedLogger.Error("executor batch failed", slog.Any("error", err))
			return
		}
		if stats.Listed > 0 {
			schedLogger.Info("executor batch finished",
				slog.Int("listed", stats.Listed),
				slog.Int("claimed", stats.Claimed),
				slog.Int("completed", stats.Completed),
				slog.Int("failed", stats.Failed),
				slog.Int("rejected", stats.Rejected))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid runner schedule %q: %w", cfg.RunnerSchedule, err)
	}

	_, err = c.AddFunc(cfg.SweepSchedule, func() {
		ctx := context.Background()
		report, err := sweeper.Run(ctx, sweep.ModeAll, false)
		if err != nil {
			schedLogger.Error("archive sweep failed", slog.Any("error", err))
			return
		}
		if report.Total() > 0 {
			schedLogger.Info("archive sweep finished",
				slog.Int("duplicates", report.Duplicates),
				slog.Int("stale", report.Stale),
				slog.Int("synced", report.Synced),
				slog.Int("orphans", report.Orphans))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	return &scheduler{cron: c, logger: schedLogger}, nil
}

func (s *scheduler) start() {
	s.logger.Info("starting background scheduler")
	s.cron.Start()
}

// stop halts scheduling and waits for in-flight jobs to finish.
func (s *scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("background scheduler stopped")
}
