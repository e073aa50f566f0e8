// Package sweep keeps the live queue healthy: retiring terminal entries
// to the archive, collapsing duplicate active entries, reconciling entries
// whose parent task moved on without them, and removing orphans whose
// task is gone. Every mode is idempotent; a second run over the same data
// finds nothing to do.
package sweep

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/metrics"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// Mode selects which cleanup passes a sweep runs.
type Mode string

// Supported sweep modes
const (
	ModeDuplicates Mode = "duplicates"
	ModeStale      Mode = "stale"
	ModeSync       Mode = "sync"
	ModeOrphans    Mode = "orphans"
	ModeAll        Mode = "all"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDuplicates, ModeStale, ModeSync, ModeOrphans, ModeAll:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown sweep mode %q", s)
	}
}

// Report summarizes one sweep. In dry-run mode the counts describe what
// would have been done and Candidates lists the affected entry IDs.
type Report struct {
	Mode       Mode        `json:"mode"`
	DryRun     bool        `json:"dry_run"`
	Duplicates int         `json:"duplicates"`
	Stale      int         `json:"stale"`
	Synced     int         `json:"synced"`
	Orphans    int         `json:"orphans"`
	Candidates []uuid.UUID `json:"candidates,omitempty"`
}

// Total returns the number of entries the sweep touched (or would touch).
func (r *Report) Total() int {
	return r.Duplicates + r.Stale + r.Synced + r.Orphans
}

// Sweeper runs the cleanup passes.
type Sweeper struct {
	db           *sql.DB
	entries      store.QueueStore
	tasks        store.TaskStore
	logs         store.DispatchLogStore
	archive      store.ArchiveStore
	retentionAge time.Duration
	logger       *slog.Logger
}

// NewSweeper creates a Sweeper. retentionAge bounds how long terminal
// entries stay in the live queue before the stale pass retires them.
func NewSweeper(
	db *sql.DB,
	entries store.QueueStore,
	tasks store.TaskStore,
	logs store.DispatchLogStore,
	archive store.ArchiveStore,
	retentionAge time.Duration,
	log *slog.Logger,
) *Sweeper {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for sweep.Sweeper")
	}
	if retentionAge <= 0 {
		retentionAge = 7 * 24 * time.Hour
	}

	return &Sweeper{
		db:           db,
		entries:      entries,
		tasks:        tasks,
		logs:         logs,
		archive:      archive,
		retentionAge: retentionAge,
		logger:       log.With(slog.String("component", "sweeper")),
	}
}

// Run executes the selected mode. With dryRun set, nothing is written;
// the report describes what a real run would do.
func (s *Sweeper) Run(ctx context.Context, mode Mode, dryRun bool) (*Report, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	report := &Report{Mode: mode, DryRun: dryRun}

	type pass struct {
		mode Mode
		fn   func(context.Context, *Report, bool) error
	}
	passes := []pass{
		{ModeDuplicates, s.sweepDuplicates},
		{ModeStale, s.sweepStale},
		{ModeSync, s.sweepSync},
		{ModeOrphans, s.sweepOrphans},
	}

	for _, p := range passes {
		if mode != ModeAll && mode != p.mode {
			continue
		}
		if err := p.fn(ctx, report, dryRun); err != nil {
			return nil, fmt.Errorf("sweep pass %s failed: %w", p.mode, err)
		}
	}

	if !dryRun && report.Total() > 0 {
		metrics.RecordEntriesArchived(report.Total())
	}

	log.Info("sweep finished",
		slog.String("mode", string(mode)),
		slog.Bool("dry_run", dryRun),
		slog.Int("total", report.Total()))

	return report, nil
}

// sweepDuplicates collapses tasks that somehow hold more than one active
// entry. The entry that has progressed furthest (then the oldest) is
// kept. Redundant quarantine entries are deleted outright, without an
// archive row: they never represented work in progress. Everything else
// is cancelled and archived.
func (s *Sweeper) sweepDuplicates(ctx context.Context, report *Report, dryRun bool) error {
	active, err := s.entries.ListActive(ctx)
	if err != nil {
		return err
	}

	byTask := make(map[uuid.UUID][]*domain.ExecutionQueueEntry)
	for _, entry := range active {
		byTask[entry.TaskID] = append(byTask[entry.TaskID], entry)
	}

	for _, group := range byTask {
		if len(group) < 2 {
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			pi, pj := statusProgress(group[i].Status), statusProgress(group[j].Status)
			if pi != pj {
				return pi > pj
			}
			return group[i].QueuedAt.Before(group[j].QueuedAt)
		})

		for _, extra := range group[1:] {
			report.Duplicates++
			if dryRun {
				report.Candidates = append(report.Candidates, extra.ID)
				continue
			}
			if extra.Status == domain.QueueStatusQuarantine {
				if err := s.discard(ctx, extra); err != nil {
					return err
				}
				continue
			}
			if err := s.retire(ctx, extra, domain.QueueStatusCancelled, "duplicate active entry"); err != nil {
				return err
			}
		}
	}

	return nil
}

// sweepStale retires terminal entries older than the retention age.
func (s *Sweeper) sweepStale(ctx context.Context, report *Report, dryRun bool) error {
	cutoff := time.Now().UTC().Add(-s.retentionAge)
	terminal, err := s.entries.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, entry := range terminal {
		report.Stale++
		if dryRun {
			report.Candidates = append(report.Candidates, entry.ID)
			continue
		}
		if err := s.archiveAndDelete(ctx, entry, ""); err != nil {
			return err
		}
	}

	return nil
}

// sweepSync retires active entries whose parent task was independently
// completed or cancelled through some other path. The entry moves to the
// matching terminal status before archival, so the queue agrees with the
// task as the source of truth. Blocked tasks are deliberately left alone:
// their quarantined entry is what an operator reset acts on.
func (s *Sweeper) sweepSync(ctx context.Context, report *Report, dryRun bool) error {
	active, err := s.entries.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, entry := range active {
		task, err := s.tasks.GetByID(ctx, entry.TenantID, entry.TaskID)
		if err != nil {
			if store.IsNotFoundError(err) {
				continue // the orphan pass owns this case
			}
			return err
		}
		if task.Status != domain.TaskStatusCompleted && task.Status != domain.TaskStatusCancelled {
			continue
		}

		report.Synced++
		if dryRun {
			report.Candidates = append(report.Candidates, entry.ID)
			continue
		}
		status := domain.QueueStatusCancelled
		if task.Status == domain.TaskStatusCompleted {
			status = domain.QueueStatusCompleted
		}
		reason := fmt.Sprintf("parent task already %s", task.Status)
		if err := s.retire(ctx, entry, status, reason); err != nil {
			return err
		}
	}

	return nil
}

// sweepOrphans retires active entries whose parent task no longer exists
// or was soft-deleted.
func (s *Sweeper) sweepOrphans(ctx context.Context, report *Report, dryRun bool) error {
	active, err := s.entries.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, entry := range active {
		task, err := s.tasks.GetByID(ctx, entry.TenantID, entry.TaskID)
		if err != nil && !store.IsNotFoundError(err) {
			return err
		}
		if err == nil && task.DeletedAt == nil {
			continue
		}

		report.Orphans++
		if dryRun {
			report.Candidates = append(report.Candidates, entry.ID)
			continue
		}
		if err := s.retire(ctx, entry, domain.QueueStatusCancelled, "parent task no longer exists"); err != nil {
			return err
		}
	}

	return nil
}

// retire moves a still-active entry to the given terminal status and
// archives it in one transaction. The reason lands in the audit log; it
// is recorded as the entry's error message only for non-completed exits.
func (s *Sweeper) retire(ctx context.Context, entry *domain.ExecutionQueueEntry, status domain.QueueStatus, reason string) error {
	now := time.Now().UTC()
	entry.Status = status
	if status != domain.QueueStatusCompleted {
		entry.ErrorMessage = reason
	}
	entry.CompletedAt = &now
	return s.archiveAndDelete(ctx, entry, reason)
}

// discard removes a redundant entry from the live queue without an
// archive row, detaching its audit records first.
func (s *Sweeper) discard(ctx context.Context, entry *domain.ExecutionQueueEntry) error {
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.logs.WithTx(tx).DetachEntry(ctx, entry.ID); err != nil {
			return err
		}
		return s.entries.WithTx(tx).Delete(ctx, entry.ID)
	})
}

// archiveAndDelete snapshots the entry into the archive, detaches its
// audit records, and removes it from the live queue.
func (s *Sweeper) archiveAndDelete(ctx context.Context, entry *domain.ExecutionQueueEntry, reason string) error {
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)
		logs := s.logs.WithTx(tx)

		if reason != "" {
			if err := entries.Update(ctx, entry); err != nil {
				return err
			}
			action := domain.DispatchActionCancelled
			if entry.Status == domain.QueueStatusCompleted {
				action = domain.DispatchActionCompleted
			}
			details, _ := json.Marshal(map[string]string{"reason": reason})
			if err := logs.Append(ctx, domain.NewDispatchLogEntry(entry, action, details)); err != nil {
				return err
			}
		}

		if err := s.archive.WithTx(tx).Insert(ctx, domain.NewExecutionArchiveEntry(entry)); err != nil {
			return err
		}
		if err := logs.DetachEntry(ctx, entry.ID); err != nil {
			return err
		}
		return entries.Delete(ctx, entry.ID)
	})
}

// statusProgress orders active statuses by how far the entry advanced.
// Quarantine ranks last: next to any other active entry it is the
// redundant one.
func statusProgress(status domain.QueueStatus) int {
	switch status {
	case domain.QueueStatusDispatched:
		return 3
	case domain.QueueStatusClaimed:
		return 2
	case domain.QueueStatusQueued:
		return 1
	default:
		return 0
	}
}
