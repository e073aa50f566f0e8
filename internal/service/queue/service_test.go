package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc     *Service
	db      *sql.DB
	sqlMock sqlmock.Sqlmock
	entries *mocks.MockQueueStore
	tasks   *mocks.MockTaskStore
	logs    *mocks.MockDispatchLogStore
	archive *mocks.MockArchiveStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	entries := mocks.NewMockQueueStore()
	tasks := mocks.NewMockTaskStore()
	logs := mocks.NewMockDispatchLogStore()
	archive := mocks.NewMockArchiveStore()

	svc := NewService(db, entries, tasks, logs, archive, Config{
		MinResultLength: 20,
	}, slog.Default())

	return &serviceFixture{
		svc:     svc,
		db:      db,
		sqlMock: sqlMock,
		entries: entries,
		tasks:   tasks,
		logs:    logs,
		archive: archive,
	}
}

// seedClaimedEntry stores a task and a claimed queue entry for it.
func (f *serviceFixture) seedClaimedEntry(t *testing.T) *domain.ExecutionQueueEntry {
	t.Helper()

	task, err := domain.NewTask(uuid.New(), "[implement] Add retry logic", "", 4, 5)
	require.NoError(t, err)
	task.Status = domain.TaskStatusNext
	f.tasks.Tasks[task.ID] = task

	entry, err := domain.NewExecutionQueueEntry(task, domain.ExecutorAgent, nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	entry.Status = domain.QueueStatusClaimed
	entry.ClaimedBy = "runner-1"
	entry.ClaimedAt = &now
	f.entries.Entries[entry.ID] = entry

	return entry
}

func TestServiceComplete(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid result and completes the task", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		result := "Implemented exponential backoff in the retry helper and added tests."
		err := f.svc.Complete(context.Background(), entry.ID, result)
		require.NoError(t, err)

		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusCompleted, stored.Status)
		assert.Equal(t, result, stored.Result)
		require.NotNil(t, stored.CompletedAt)

		task := f.tasks.Tasks[entry.TaskID]
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)

		actions := f.logs.ActionsFor(entry.TaskID)
		assert.Equal(t, []domain.DispatchAction{domain.DispatchActionCompleted}, actions)
		assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	})

	t.Run("rejects a result below the minimum length", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)

		err := f.svc.Complete(context.Background(), entry.ID, "done")
		require.ErrorIs(t, err, ErrResultTooShort)

		// No transaction, no state change.
		assert.Equal(t, domain.QueueStatusClaimed, f.entries.Entries[entry.ID].Status)
		assert.Empty(t, f.logs.Log)
	})

	t.Run("routes a failure-indicator result to the failure path", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)

		// The Fail call runs its own transaction.
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		result := "I was unable to complete the task because the repository would not build."
		err := f.svc.Complete(context.Background(), entry.ID, result)
		require.ErrorIs(t, err, ErrSuspectResult)

		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusQueued, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Empty(t, stored.ClaimedBy)

		// The parent task is never completed on a suspect result.
		assert.Equal(t, domain.TaskStatusNext, f.tasks.Tasks[entry.TaskID].Status)

		actions := f.logs.ActionsFor(entry.TaskID)
		assert.Equal(t, []domain.DispatchAction{
			domain.DispatchActionFailed,
			domain.DispatchActionRetryQueued,
		}, actions)
	})

	t.Run("rejects completion of a quarantined entry", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)
		f.entries.Entries[entry.ID].Status = domain.QueueStatusQuarantine

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectRollback()

		err := f.svc.Complete(context.Background(), entry.ID,
			"A result long enough to pass the length validation check.")
		require.ErrorIs(t, err, ErrEntryNotClaimable)
	})
}

func TestServiceFail(t *testing.T) {
	t.Parallel()

	t.Run("re-queues while the retry budget lasts", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		err := f.svc.Fail(context.Background(), entry.ID, "executor crashed")
		require.NoError(t, err)

		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusQueued, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, "executor crashed", stored.ErrorMessage)
		assert.Empty(t, stored.ClaimedBy)
		assert.Nil(t, stored.ClaimedAt)
	})

	t.Run("quarantines once retries are exhausted", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)
		f.entries.Entries[entry.ID].RetryCount = entry.MaxRetries - 1

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		err := f.svc.Fail(context.Background(), entry.ID, "executor crashed again")
		require.NoError(t, err)

		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusQuarantine, stored.Status)
		assert.Equal(t, entry.MaxRetries, stored.RetryCount)

		actions := f.logs.ActionsFor(entry.TaskID)
		assert.Equal(t, []domain.DispatchAction{
			domain.DispatchActionFailed,
			domain.DispatchActionQuarantined,
		}, actions)
	})

	t.Run("walks the full retry sequence before quarantine", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)

		for i := 1; i <= entry.MaxRetries; i++ {
			f.sqlMock.ExpectBegin()
			f.sqlMock.ExpectCommit()

			// Re-claim between attempts the way a runner would.
			f.entries.Entries[entry.ID].Status = domain.QueueStatusClaimed

			err := f.svc.Fail(context.Background(), entry.ID, "attempt failed")
			require.NoError(t, err)
			assert.Equal(t, i, f.entries.Entries[entry.ID].RetryCount)
		}

		assert.Equal(t, domain.QueueStatusQuarantine, f.entries.Entries[entry.ID].Status)
	})
}

func TestServiceClaim(t *testing.T) {
	t.Parallel()

	t.Run("claims a queued entry and records the transition", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t)
		f.entries.Entries[entry.ID].Status = domain.QueueStatusQueued
		f.entries.Entries[entry.ID].ClaimedBy = ""
		f.entries.Entries[entry.ID].ClaimedAt = nil

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		claimed, err := f.svc.Claim(context.Background(), entry.ID, "runner-7")
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, "runner-7", f.entries.Entries[entry.ID].ClaimedBy)

		actions := f.logs.ActionsFor(entry.TaskID)
		assert.Equal(t, []domain.DispatchAction{domain.DispatchActionClaimed}, actions)
	})

	t.Run("returns false without error when the claim is lost", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		entry := f.seedClaimedEntry(t) // already claimed

		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()

		claimed, err := f.svc.Claim(context.Background(), entry.ID, "runner-7")
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Empty(t, f.logs.Log)
	})
}

func TestServiceCancelTask(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	entry := f.seedClaimedEntry(t)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	cancelled, err := f.svc.CancelTask(context.Background(), entry.TaskID, "task deleted upstream")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	// The entry is archived, not left in the live queue.
	assert.NotContains(t, f.entries.Entries, entry.ID)
	require.Len(t, f.archive.Archived, 1)
	assert.Equal(t, domain.QueueStatusCancelled, f.archive.Archived[0].Status)

	// The audit trail survives with the entry reference detached.
	actions := f.logs.ActionsFor(entry.TaskID)
	assert.Equal(t, []domain.DispatchAction{domain.DispatchActionCancelled}, actions)
	assert.Nil(t, f.logs.Log[0].QueueEntryID)
}

func TestServiceResetQuarantine(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	entry := f.seedClaimedEntry(t)
	f.entries.Entries[entry.ID].Status = domain.QueueStatusQuarantine
	f.entries.Entries[entry.ID].RetryCount = entry.MaxRetries
	f.entries.Entries[entry.ID].ErrorMessage = "gave up"
	f.tasks.Tasks[entry.TaskID].Status = domain.TaskStatusBlocked

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()

	reset, err := f.svc.ResetQuarantine(context.Background(), entry.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	stored := f.entries.Entries[entry.ID]
	assert.Equal(t, domain.QueueStatusQueued, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, stored.ErrorMessage)

	// A breaker-blocked task becomes dispatchable again.
	assert.Equal(t, domain.TaskStatusNext, f.tasks.Tasks[entry.TaskID].Status)
}

func TestMatchFailureIndicator(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	cases := []struct {
		result string
		match  bool
	}{
		{"The change was applied and all tests pass.", false},
		{"I could not locate the configuration file.", true},
		{"Unable To Complete due to missing credentials.", true},
		{"No changes were made because the fix already existed.", true},
	}

	for _, tc := range cases {
		phrase := f.svc.matchFailureIndicator(tc.result)
		if tc.match {
			assert.NotEmpty(t, phrase, "expected indicator match for %q", tc.result)
			assert.True(t, strings.Contains(strings.ToLower(tc.result), phrase))
		} else {
			assert.Empty(t, phrase, "unexpected indicator match for %q", tc.result)
		}
	}
}
