package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/mocks"
	"github.com/cortexops/dispatch/internal/service/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExecutor is a scriptable Executor for runner tests.
type stubExecutor struct {
	healthy bool
	result  *Result
	err     error
	calls   int
}

func (s *stubExecutor) Execute(ctx context.Context, contextBlob json.RawMessage) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubExecutor) Healthy(ctx context.Context) bool {
	return s.healthy
}

type runnerFixture struct {
	runner  *Runner
	stub    *stubExecutor
	sqlMock sqlmock.Sqlmock
	entries *mocks.MockQueueStore
	tasks   *mocks.MockTaskStore
	logs    *mocks.MockDispatchLogStore
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	entries := mocks.NewMockQueueStore()
	tasks := mocks.NewMockTaskStore()
	logs := mocks.NewMockDispatchLogStore()
	archive := mocks.NewMockArchiveStore()

	queueSvc := queue.NewService(db, entries, tasks, logs, archive, queue.Config{
		MinResultLength: 20,
	}, slog.Default())

	stub := &stubExecutor{healthy: true}
	runner := NewRunner(stub, queueSvc, entries, RunnerConfig{
		Claimant:      "runner-test",
		BatchLimit:    10,
		StuckClaimAge: 30 * time.Minute,
	}, slog.Default())

	return &runnerFixture{
		runner:  runner,
		stub:    stub,
		sqlMock: sqlMock,
		entries: entries,
		tasks:   tasks,
		logs:    logs,
	}
}

// expectTx queues expectations for n committed transactions.
func (f *runnerFixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.sqlMock.ExpectBegin()
		f.sqlMock.ExpectCommit()
	}
}

// seedQueuedEntry stores a ready task and a queued agent entry.
func (f *runnerFixture) seedQueuedEntry(t *testing.T) *domain.ExecutionQueueEntry {
	t.Helper()

	task, err := domain.NewTask(uuid.New(), "[implement] Add retry logic", "", 4, 5)
	require.NoError(t, err)
	task.Status = domain.TaskStatusNext
	f.tasks.Tasks[task.ID] = task

	entry, err := domain.NewExecutionQueueEntry(task, domain.ExecutorAgent, nil)
	require.NoError(t, err)
	f.entries.Entries[entry.ID] = entry
	return entry
}

func TestRunBatch(t *testing.T) {
	t.Parallel()

	t.Run("claims executes and completes an entry", func(t *testing.T) {
		t.Parallel()
		f := newRunnerFixture(t)
		entry := f.seedQueuedEntry(t)
		f.stub.result = &Result{Content: "Applied the fix and verified the new test suite passes."}

		// claim, mark dispatched, complete
		f.expectTx(3)

		stats, err := f.runner.RunBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Claimed)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, f.stub.calls)

		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusCompleted, stored.Status)
		assert.Equal(t, "runner-test", stored.ClaimedBy)

		actions := f.logs.ActionsFor(entry.TaskID)
		assert.Equal(t, []domain.DispatchAction{
			domain.DispatchActionClaimed,
			domain.DispatchActionDispatched,
			domain.DispatchActionCompleted,
		}, actions)
	})

	t.Run("records an executor error as a failed attempt", func(t *testing.T) {
		t.Parallel()
		f := newRunnerFixture(t)
		entry := f.seedQueuedEntry(t)
		f.stub.err = errors.New("backend returned 500")

		// claim, mark dispatched, fail
		f.expectTx(3)

		stats, err := f.runner.RunBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Failed)
		stored := f.entries.Entries[entry.ID]
		assert.Equal(t, domain.QueueStatusQueued, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
	})

	t.Run("treats a nil result as a failure", func(t *testing.T) {
		t.Parallel()
		f := newRunnerFixture(t)
		entry := f.seedQueuedEntry(t)
		f.stub.result = nil
		f.stub.err = nil
		f.expectTx(3)

		stats, err := f.runner.RunBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, domain.QueueStatusQueued, f.entries.Entries[entry.ID].Status)
	})

	t.Run("skips the batch when the executor is unhealthy", func(t *testing.T) {
		t.Parallel()
		f := newRunnerFixture(t)
		entry := f.seedQueuedEntry(t)
		f.stub.healthy = false

		stats, err := f.runner.RunBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 0, stats.Claimed)
		assert.Equal(t, 0, f.stub.calls)
		// The entry keeps its retry budget untouched.
		assert.Equal(t, 0, f.entries.Entries[entry.ID].RetryCount)
		assert.Equal(t, domain.QueueStatusQueued, f.entries.Entries[entry.ID].Status)
	})

	t.Run("counts a lost claim race without executing", func(t *testing.T) {
		t.Parallel()
		f := newRunnerFixture(t)
		f.seedQueuedEntry(t)

		// Another runner wins every claim.
		f.entries.ClaimFn = func(ctx context.Context, id uuid.UUID, claimant string) (bool, error) {
			return false, nil
		}
		f.expectTx(1) // the claim transaction still commits

		stats, err := f.runner.RunBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, stats.LostRaces)
		assert.Equal(t, 0, f.stub.calls)
	})
}

func TestRunBatchForClassAndLimit(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	agent := f.seedQueuedEntry(t)

	task, err := domain.NewTask(uuid.New(), "[review] Check the rollout plan", "", 3, 3)
	require.NoError(t, err)
	task.Status = domain.TaskStatusNext
	f.tasks.Tasks[task.ID] = task

	assisted, err := domain.NewExecutionQueueEntry(task, domain.ExecutorHumanAssisted, nil)
	require.NoError(t, err)
	f.entries.Entries[assisted.ID] = assisted

	f.stub.result = &Result{Content: "Reviewed the rollout plan; staging gates and rollback all check out."}

	f.expectTx(3) // claim, dispatch, complete

	stats, err := f.runner.RunBatchFor(context.Background(), domain.ExecutorHumanAssisted, 5)
	require.NoError(t, err)

	// Only the requested class was drained; the agent entry is untouched.
	assert.Equal(t, 1, stats.Listed)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, domain.QueueStatusCompleted, f.entries.Entries[assisted.ID].Status)
	assert.Equal(t, domain.QueueStatusQueued, f.entries.Entries[agent.ID].Status)
}

func TestRunBatchForDefaults(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	entry := f.seedQueuedEntry(t)

	f.stub.result = &Result{Content: "Added the retry logic with exponential backoff and tests."}

	f.expectTx(3)

	// Zero values fall back to the agent class and the configured limit.
	stats, err := f.runner.RunBatchFor(context.Background(), "", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Listed)
	assert.Equal(t, domain.QueueStatusCompleted, f.entries.Entries[entry.ID].Status)
}

func TestReconcileStuck(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	entry := f.seedQueuedEntry(t)

	stale := time.Now().UTC().Add(-2 * time.Hour)
	f.entries.Entries[entry.ID].Status = domain.QueueStatusClaimed
	f.entries.Entries[entry.ID].ClaimedBy = "crashed-runner"
	f.entries.Entries[entry.ID].ClaimedAt = &stale

	f.expectTx(1) // the fail transaction

	reconciled, err := f.runner.ReconcileStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)

	stored := f.entries.Entries[entry.ID]
	assert.Equal(t, domain.QueueStatusQueued, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Empty(t, stored.ClaimedBy)
}

func TestReconcileStuckLeavesFreshClaims(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	entry := f.seedQueuedEntry(t)

	recent := time.Now().UTC().Add(-time.Minute)
	f.entries.Entries[entry.ID].Status = domain.QueueStatusClaimed
	f.entries.Entries[entry.ID].ClaimedBy = "active-runner"
	f.entries.Entries[entry.ID].ClaimedAt = &recent

	reconciled, err := f.runner.ReconcileStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)

	stored := f.entries.Entries[entry.ID]
	assert.Equal(t, domain.QueueStatusClaimed, stored.Status)
	assert.Equal(t, "active-runner", stored.ClaimedBy)
}
