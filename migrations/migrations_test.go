package migrations

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/dispatch/internal/domain"
)

func TestQueueSchemaAcceptsAllExecutorClasses(t *testing.T) {
	t.Parallel()

	schema, err := FS.ReadFile("00002_create_execution_queue.sql")
	require.NoError(t, err)

	for _, class := range domain.AllExecutorClasses() {
		assert.Contains(t, string(schema), fmt.Sprintf("'%s'", class),
			"executor_class check must allow %s", class)
	}
}

func TestQueueSchemaAcceptsAllEntryStatuses(t *testing.T) {
	t.Parallel()

	schema, err := FS.ReadFile("00002_create_execution_queue.sql")
	require.NoError(t, err)

	statuses := []domain.QueueStatus{
		domain.QueueStatusQueued,
		domain.QueueStatusClaimed,
		domain.QueueStatusDispatched,
		domain.QueueStatusQuarantine,
		domain.QueueStatusCompleted,
		domain.QueueStatusFailed,
		domain.QueueStatusCancelled,
	}
	for _, status := range statuses {
		assert.Contains(t, string(schema), fmt.Sprintf("'%s'", status),
			"status check must allow %s", status)
	}
}
