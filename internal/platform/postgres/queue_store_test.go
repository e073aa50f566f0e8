package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueueStore(t *testing.T) (sqlmock.Sqlmock, *PostgresQueueStore) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return mock, NewPostgresQueueStore(db)
}

func testEntry(t *testing.T) *domain.ExecutionQueueEntry {
	t.Helper()

	task, err := domain.NewTask(uuid.New(), "[implement] Add retry logic", "", 4, 5)
	require.NoError(t, err)
	task.Status = domain.TaskStatusNext

	entry, err := domain.NewExecutionQueueEntry(task, domain.ExecutorAgent, json.RawMessage(`{}`))
	require.NoError(t, err)

	return entry
}

func TestQueueStoreClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("claim succeeds when entry is still queued", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		id := uuid.New()

		mock.ExpectExec("UPDATE execution_queue").
			WithArgs(
				string(domain.QueueStatusClaimed),
				"runner-1",
				sqlmock.AnyArg(),
				id,
				string(domain.QueueStatusQueued),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		claimed, err := s.Claim(ctx, id, "runner-1")
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claim returns false, not an error, when another claimant won", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		id := uuid.New()

		mock.ExpectExec("UPDATE execution_queue").
			WithArgs(
				string(domain.QueueStatusClaimed),
				"runner-2",
				sqlmock.AnyArg(),
				id,
				string(domain.QueueStatusQueued),
			).
			WillReturnResult(sqlmock.NewResult(0, 0))

		claimed, err := s.Claim(ctx, id, "runner-2")
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueueStoreInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("successful insert", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		entry := testEntry(t)

		mock.ExpectExec("INSERT INTO execution_queue").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.Insert(ctx, entry)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("partial unique index violation maps to ErrActiveEntryExists", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		entry := testEntry(t)

		mock.ExpectExec("INSERT INTO execution_queue").
			WillReturnError(&pgconn.PgError{
				Code:           "23505",
				ConstraintName: "execution_queue_one_active_per_task",
			})

		err := s.Insert(ctx, entry)
		assert.ErrorIs(t, err, store.ErrActiveEntryExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid entry is rejected before hitting the database", func(t *testing.T) {
		_, s := setupQueueStore(t)
		entry := testEntry(t)
		entry.ExecutorClass = domain.ExecutorClass("robot")

		err := s.Insert(ctx, entry)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestQueueStoreGetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("entry not found", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		id := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM execution_queue").
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetByID(ctx, id)
		assert.ErrorIs(t, err, store.ErrEntryNotFound)
	})

	t.Run("successful retrieval", func(t *testing.T) {
		mock, s := setupQueueStore(t)
		entry := testEntry(t)

		rows := sqlmock.NewRows([]string{
			"id", "tenant_id", "task_id", "executor_class", "status", "priority", "context",
			"claimed_by", "result", "error_message", "retry_count", "max_retries",
			"queued_at", "claimed_at", "dispatched_at", "completed_at",
		}).AddRow(
			entry.ID, entry.TenantID, entry.TaskID, string(entry.ExecutorClass),
			string(entry.Status), entry.Priority, []byte(entry.Context),
			nil, nil, nil, 0, 3,
			entry.QueuedAt, nil, nil, nil,
		)

		mock.ExpectQuery("SELECT (.+) FROM execution_queue").
			WithArgs(entry.ID).
			WillReturnRows(rows)

		got, err := s.GetByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, domain.QueueStatusQueued, got.Status)
		assert.Equal(t, domain.ExecutorAgent, got.ExecutorClass)
		assert.Equal(t, 20, got.Priority)
	})
}

func TestQueueStoreListQueuedOrdering(t *testing.T) {
	ctx := context.Background()
	mock, s := setupQueueStore(t)

	high := testEntry(t)
	low := testEntry(t)
	low.Priority = 4

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "task_id", "executor_class", "status", "priority", "context",
		"claimed_by", "result", "error_message", "retry_count", "max_retries",
		"queued_at", "claimed_at", "dispatched_at", "completed_at",
	}).AddRow(
		high.ID, high.TenantID, high.TaskID, "agent", "queued", 20, []byte(`{}`),
		nil, nil, nil, 0, 3, time.Now().UTC(), nil, nil, nil,
	).AddRow(
		low.ID, low.TenantID, low.TaskID, "agent", "queued", 4, []byte(`{}`),
		nil, nil, nil, 0, 3, time.Now().UTC(), nil, nil, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM execution_queue").
		WithArgs(string(domain.QueueStatusQueued), string(domain.ExecutorAgent), 10).
		WillReturnRows(rows)

	entries, err := s.ListQueued(ctx, domain.ExecutorAgent, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, high.ID, entries[0].ID)
}
