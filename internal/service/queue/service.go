// Package queue implements the execution queue state machine: claiming,
// completion, failure with bounded retries, quarantine, cancellation, and
// operator resets. Every transition is recorded in the dispatch log.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/metrics"
	"github.com/cortexops/dispatch/internal/platform/logger"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
)

// Validation errors surfaced to callers of Complete.
var (
	// ErrResultTooShort is returned when a completion result is below the
	// configured minimum length. The entry is left untouched.
	ErrResultTooShort = errors.New("result content too short to accept")

	// ErrSuspectResult is returned when a completion result matches a
	// failure-indicator phrase: an executor reported success while the text
	// says otherwise. The entry is routed to the failure path instead.
	ErrSuspectResult = errors.New("result matches a failure indicator, routed to failure")

	// ErrEntryNotClaimable is returned when Complete or Fail is called on
	// an entry that is not in a claimed or dispatched status.
	ErrEntryNotClaimable = errors.New("entry is not in a claimable working state")
)

// defaultFailureIndicators are phrases that, appearing in a "successful"
// result, signal the work was not actually done.
var defaultFailureIndicators = []string{
	"i could not",
	"i was unable to",
	"could not find",
	"unable to complete",
	"no changes were made",
	"task could not be completed",
}

// Config tunes the state machine's result validation.
type Config struct {
	// MinResultLength is the minimum accepted completion result length.
	MinResultLength int

	// FailureIndicators overrides the default failure-indicator phrases
	// when non-empty. Matching is case-insensitive substring search.
	FailureIndicators []string
}

// Service owns the queue entry state transitions. All multi-row
// transitions run inside a single database transaction.
type Service struct {
	db       *sql.DB
	entries  store.QueueStore
	tasks    store.TaskStore
	logs     store.DispatchLogStore
	archive  store.ArchiveStore
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a queue Service.
func NewService(
	db *sql.DB,
	entries store.QueueStore,
	tasks store.TaskStore,
	logs store.DispatchLogStore,
	archive store.ArchiveStore,
	cfg Config,
	log *slog.Logger,
) *Service {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for queue.Service")
	}
	if cfg.MinResultLength <= 0 {
		cfg.MinResultLength = 20
	}
	if len(cfg.FailureIndicators) == 0 {
		cfg.FailureIndicators = defaultFailureIndicators
	}

	return &Service{
		db:      db,
		entries: entries,
		tasks:   tasks,
		logs:    logs,
		archive: archive,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "queue_service")),
	}
}

// Claim attempts to claim a queued entry for the given claimant.
// Returns false with no error when another claimant already advanced the
// entry; that is a normal outcome, not a failure.
func (s *Service) Claim(ctx context.Context, entryID uuid.UUID, claimant string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var claimed bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)

		ok, err := entries.Claim(ctx, entryID, claimant)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		claimed = true

		entry, err := entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]string{"claimed_by": claimant})
		return s.logs.WithTx(tx).Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionClaimed, details))
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim entry: %w", err)
	}

	if claimed {
		log.Debug("entry claimed",
			slog.String("entry_id", entryID.String()),
			slog.String("claimed_by", claimant))
	}

	return claimed, nil
}

// MarkDispatched moves a claimed entry to dispatched for long-running
// external work.
func (s *Service) MarkDispatched(ctx context.Context, entryID uuid.UUID) (bool, error) {
	var moved bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)

		ok, err := entries.MarkDispatched(ctx, entryID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		moved = true

		entry, err := entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}

		return s.logs.WithTx(tx).Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionDispatched, nil))
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark entry dispatched: %w", err)
	}

	return moved, nil
}

// Complete resolves an entry as successfully done.
//
// The result must meet the minimum length and must not match any
// failure-indicator phrase; an indicator match means an executor reported
// success while its own text says otherwise, so the entry is routed
// through Fail with a synthesized error and ErrSuspectResult is returned.
// On acceptance the parent task is marked completed as well.
func (s *Service) Complete(ctx context.Context, entryID uuid.UUID, result string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	trimmed := strings.TrimSpace(result)
	if len(trimmed) < s.cfg.MinResultLength {
		return fmt.Errorf("%w: got %d characters, need %d",
			ErrResultTooShort, len(trimmed), s.cfg.MinResultLength)
	}

	if phrase := s.matchFailureIndicator(trimmed); phrase != "" {
		log.Warn("completion result matches failure indicator, routing to failure",
			slog.String("entry_id", entryID.String()),
			slog.String("phrase", phrase))

		synthesized := fmt.Sprintf("result reported success but matched failure indicator %q", phrase)
		if err := s.Fail(ctx, entryID, synthesized); err != nil {
			return err
		}
		return fmt.Errorf("%w: %q", ErrSuspectResult, phrase)
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)

		entry, err := entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}

		if entry.Status != domain.QueueStatusClaimed && entry.Status != domain.QueueStatusDispatched {
			return fmt.Errorf("%w: status is %s", ErrEntryNotClaimable, entry.Status)
		}

		now := time.Now().UTC()
		entry.Status = domain.QueueStatusCompleted
		entry.Result = trimmed
		entry.ErrorMessage = ""
		entry.CompletedAt = &now

		if err := entries.Update(ctx, entry); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]any{"result_length": len(trimmed)})
		if err := s.logs.WithTx(tx).Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionCompleted, details)); err != nil {
			return err
		}

		// The queue entry is the source of truth for execution; completing
		// it completes the task.
		if err := s.tasks.WithTx(tx).UpdateStatus(ctx, entry.TaskID, domain.TaskStatusCompleted, &now); err != nil {
			return err
		}

		metrics.RecordEntryCompleted(entry.ExecutorClass)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete entry: %w", err)
	}

	log.Info("entry completed", slog.String("entry_id", entryID.String()))
	return nil
}

// Fail records a failed execution attempt. While the retry budget lasts
// the entry returns to queued with claim fields cleared; once exhausted it
// moves to quarantine and waits for an operator.
func (s *Service) Fail(ctx context.Context, entryID uuid.UUID, errMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var quarantined bool
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)

		entry, err := entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}

		switch entry.Status {
		case domain.QueueStatusClaimed, domain.QueueStatusDispatched, domain.QueueStatusQueued:
			// queued entries can fail too: a dispatch-time executor rejection
		default:
			return fmt.Errorf("%w: status is %s", ErrEntryNotClaimable, entry.Status)
		}

		entry.RetryCount++
		entry.ErrorMessage = errMsg

		action := domain.DispatchActionRetryQueued
		if entry.RetriesExhausted() {
			entry.Status = domain.QueueStatusQuarantine
			action = domain.DispatchActionQuarantined
			quarantined = true
		} else {
			// Back to the queue, immediately claimable again; pacing is the
			// dispatcher's cadence, not a backoff here.
			entry.Status = domain.QueueStatusQueued
			entry.ClaimedBy = ""
			entry.ClaimedAt = nil
			entry.DispatchedAt = nil
		}

		if err := entries.Update(ctx, entry); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]any{
			"error":       errMsg,
			"retry_count": entry.RetryCount,
			"max_retries": entry.MaxRetries,
		})
		failLog := domain.NewDispatchLogEntry(entry, domain.DispatchActionFailed, details)
		if err := s.logs.WithTx(tx).Append(ctx, failLog); err != nil {
			return err
		}
		if err := s.logs.WithTx(tx).Append(ctx, domain.NewDispatchLogEntry(entry, action, details)); err != nil {
			return err
		}

		metrics.RecordEntryFailed(entry.ExecutorClass)
		if quarantined {
			metrics.RecordEntryQuarantined(entry.ExecutorClass)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record entry failure: %w", err)
	}

	if quarantined {
		log.Warn("entry quarantined after exhausting retries",
			slog.String("entry_id", entryID.String()),
			slog.String("error", errMsg))
	} else {
		log.Info("entry re-queued after failure",
			slog.String("entry_id", entryID.String()),
			slog.String("error", errMsg))
	}

	return nil
}

// CancelTask propagates an external task cancellation: every active entry
// for the task is force-transitioned to cancelled and archived. There is
// no in-flight signal to a running executor; cancellation only prevents
// future claims and retries.
func (s *Service) CancelTask(ctx context.Context, taskID uuid.UUID, reason string) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var cancelled int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)
		logs := s.logs.WithTx(tx)
		archive := s.archive.WithTx(tx)

		active, err := entries.ListActiveByTask(ctx, taskID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, entry := range active {
			entry.Status = domain.QueueStatusCancelled
			entry.ErrorMessage = reason
			entry.CompletedAt = &now

			if err := entries.Update(ctx, entry); err != nil {
				return err
			}

			details, _ := json.Marshal(map[string]string{"reason": reason})
			if err := logs.Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionCancelled, details)); err != nil {
				return err
			}

			if err := archive.Insert(ctx, domain.NewExecutionArchiveEntry(entry)); err != nil {
				return err
			}
			if err := logs.DetachEntry(ctx, entry.ID); err != nil {
				return err
			}
			if err := entries.Delete(ctx, entry.ID); err != nil {
				return err
			}

			cancelled++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cancel task entries: %w", err)
	}

	if cancelled > 0 {
		log.Info("task entries cancelled",
			slog.String("task_id", taskID.String()),
			slog.Int("count", cancelled))
	}

	return cancelled, nil
}

// ResetQuarantine returns quarantined entries to the queue with a fresh
// retry budget. A nil tenant filter (uuid.Nil) resets across all tenants.
// Tasks the circuit breaker blocked are returned to next so the dispatcher
// sees them again.
func (s *Service) ResetQuarantine(ctx context.Context, tenantID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var reset int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		entries := s.entries.WithTx(tx)
		tasks := s.tasks.WithTx(tx)
		logs := s.logs.WithTx(tx)

		quarantined, err := entries.ListQuarantined(ctx, tenantID)
		if err != nil {
			return err
		}

		for _, entry := range quarantined {
			entry.Status = domain.QueueStatusQueued
			entry.RetryCount = 0
			entry.ErrorMessage = ""
			entry.ClaimedBy = ""
			entry.ClaimedAt = nil
			entry.DispatchedAt = nil

			if err := entries.Update(ctx, entry); err != nil {
				return err
			}

			details, _ := json.Marshal(map[string]string{"reason": "operator reset"})
			if err := logs.Append(ctx, domain.NewDispatchLogEntry(entry, domain.DispatchActionRetryQueued, details)); err != nil {
				return err
			}

			// Unblock the task if the breaker had stopped it.
			task, err := tasks.GetByID(ctx, entry.TenantID, entry.TaskID)
			if err != nil {
				if store.IsNotFoundError(err) {
					continue
				}
				return err
			}
			if task.Status == domain.TaskStatusBlocked {
				if err := tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusNext, nil); err != nil {
					return err
				}
			}

			reset++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset quarantined entries: %w", err)
	}

	log.Info("quarantined entries reset", slog.Int("count", reset))
	return reset, nil
}

// Stats reports entry counts by status and by executor class for a tenant.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID) (*QueueStats, error) {
	byStatus, err := s.entries.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by status: %w", err)
	}

	byClass, err := s.entries.CountByClass(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by class: %w", err)
	}

	metrics.UpdateQueueDepth(byStatus)

	return &QueueStats{
		TenantID: tenantID,
		ByStatus: byStatus,
		ByClass:  byClass,
	}, nil
}

// QueueStats is the per-tenant queue census returned by Stats.
type QueueStats struct {
	TenantID uuid.UUID                    `json:"tenant_id"`
	ByStatus map[domain.QueueStatus]int   `json:"by_status"`
	ByClass  map[domain.ExecutorClass]int `json:"by_class"`
}

// matchFailureIndicator returns the first configured indicator phrase
// found in the result, or "" when the result looks genuine.
func (s *Service) matchFailureIndicator(result string) string {
	lowered := strings.ToLower(result)
	for _, phrase := range s.cfg.FailureIndicators {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}
	return ""
}
