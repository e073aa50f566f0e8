package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"text/template"
	"time"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExecutor builds an Executor with a scripted generate function
// and no real client.
func newTestExecutor(t *testing.T, generate generateFn) *Executor {
	t.Helper()

	promptTemplate, err := template.New("task").Parse(defaultPromptTemplate)
	require.NoError(t, err)

	return &Executor{
		generate:       generate,
		promptTemplate: promptTemplate,
		model:          "gemini-2.0-flash",
		maxRetries:     2,
		baseDelay:      time.Millisecond,
		logger:         slog.Default(),
	}
}

func snapshot(t *testing.T) json.RawMessage {
	t.Helper()

	blob, err := json.Marshal(promptData{
		TaskID:     "3eaf1ab8-0000-0000-0000-000000000001",
		Title:      "[implement] Add retry logic",
		Urgency:    4,
		Importance: 5,
		Priority:   20,
	})
	require.NoError(t, err)
	return blob
}

func TestExecute(t *testing.T) {
	t.Parallel()

	t.Run("renders the snapshot into the prompt and returns the response", func(t *testing.T) {
		t.Parallel()

		var seenPrompt string
		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			seenPrompt = prompt
			return "Added exponential backoff to the retry helper.", nil
		})

		result, err := e.Execute(context.Background(), snapshot(t))
		require.NoError(t, err)

		assert.Equal(t, "Added exponential backoff to the retry helper.", result.Content)
		assert.Equal(t, "gemini-2.0-flash", result.Model)
		assert.Contains(t, seenPrompt, "[implement] Add retry logic")
		assert.Contains(t, seenPrompt, "Priority: 20 (urgency 4, importance 5)")
	})

	t.Run("rejects an empty context snapshot", func(t *testing.T) {
		t.Parallel()

		e := newTestExecutor(t, nil)
		_, err := e.Execute(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyContext)

		_, err = e.Execute(context.Background(), json.RawMessage(`{"urgency": 3}`))
		assert.ErrorIs(t, err, ErrEmptyContext)
	})

	t.Run("retries transient errors until one succeeds", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("rpc error: unavailable")
			}
			return "Recovered on the third attempt.", nil
		})

		result, err := e.Execute(context.Background(), snapshot(t))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, "Recovered on the third attempt.", result.Content)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "", errors.New("rpc error: unavailable")
		})

		_, err := e.Execute(context.Background(), snapshot(t))
		assert.ErrorIs(t, err, ErrTransientFailure)
		assert.Equal(t, e.maxRetries+1, calls)
	})

	t.Run("does not retry a safety block", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "", ErrContentBlocked
		})

		_, err := e.Execute(context.Background(), snapshot(t))
		assert.ErrorIs(t, err, ErrContentBlocked)
		assert.Equal(t, 1, calls)
	})
}

func TestHealthy(t *testing.T) {
	t.Parallel()

	t.Run("probes the backend and caches the verdict", func(t *testing.T) {
		t.Parallel()

		calls := 0
		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "ok", nil
		})

		assert.True(t, e.Healthy(context.Background()))
		assert.True(t, e.Healthy(context.Background()))
		assert.Equal(t, 1, calls, "second check within the probe interval must not call the API")
	})

	t.Run("reports unhealthy when the probe fails", func(t *testing.T) {
		t.Parallel()

		e := newTestExecutor(t, func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("connection refused")
		})

		assert.False(t, e.Healthy(context.Background()))
	})
}

func TestNewExecutorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(context.Background(),
		config.LLMConfig{GeminiAPIKey: "", ModelName: "gemini-2.0-flash"}, slog.Default())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewExecutor(context.Background(),
		config.LLMConfig{GeminiAPIKey: "key", ModelName: ""}, slog.Default())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
