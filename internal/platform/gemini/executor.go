package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"text/template"
	"time"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/internal/service/executor"
	"google.golang.org/genai"
)

// defaultPromptTemplate renders the context snapshot into the prompt sent
// to the model.
const defaultPromptTemplate = `You are an autonomous task executor.
Carry out the following task and report exactly what you did.

Task: {{.Title}}
{{- if .Description}}
Details: {{.Description}}
{{- end}}
Priority: {{.Priority}} (urgency {{.Urgency}}, importance {{.Importance}})

Respond with a concise, concrete summary of the work performed and its
outcome. If you could not complete the task, start your response with
"UNABLE TO COMPLETE" and explain why.`

// healthProbeInterval is how long a health probe result is trusted before
// the next RunBatch probes again.
const healthProbeInterval = time.Minute

// generateFn is the seam between the executor and the genai client, so
// tests can script responses without network access.
type generateFn func(ctx context.Context, prompt string) (string, error)

// promptData mirrors the dispatcher's context snapshot.
type promptData struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Urgency     int    `json:"urgency"`
	Importance  int    `json:"importance"`
	Priority    int    `json:"priority"`
}

// Executor implements executor.Executor against the Gemini API.
type Executor struct {
	generate       generateFn
	promptTemplate *template.Template
	model          string
	maxRetries     int
	baseDelay      time.Duration
	logger         *slog.Logger

	mu          sync.Mutex
	lastProbe   time.Time
	lastHealthy bool
}

// Compile-time interface check
var _ executor.Executor = (*Executor)(nil)

// NewExecutor creates a Gemini-backed Executor from the LLM configuration.
func NewExecutor(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*Executor, error) {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for gemini.Executor")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	promptTemplate, err := template.New("task").Parse(defaultPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}

	e := &Executor{
		promptTemplate: promptTemplate,
		model:          cfg.ModelName,
		maxRetries:     3,
		baseDelay:      2 * time.Second,
		logger:         log.With(slog.String("component", "gemini_executor")),
	}
	e.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		return extractText(resp)
	}

	return e, nil
}

// Execute implements executor.Executor. The entry's context snapshot is
// rendered into a prompt and sent to the model with bounded retries.
func (e *Executor) Execute(ctx context.Context, contextBlob json.RawMessage) (*executor.Result, error) {
	prompt, err := e.buildPrompt(contextBlob)
	if err != nil {
		return nil, err
	}

	text, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &executor.Result{Content: text, Model: e.model}, nil
}

// Healthy implements executor.Executor with a cached liveness probe.
func (e *Executor) Healthy(ctx context.Context) bool {
	e.mu.Lock()
	if time.Since(e.lastProbe) < healthProbeInterval {
		healthy := e.lastHealthy
		e.mu.Unlock()
		return healthy
	}
	e.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := e.generate(probeCtx, "Reply with the single word: ok")
	healthy := err == nil
	if err != nil {
		e.logger.WarnContext(ctx, "gemini health probe failed",
			slog.String("error", err.Error()))
	}

	e.mu.Lock()
	e.lastProbe = time.Now()
	e.lastHealthy = healthy
	e.mu.Unlock()

	return healthy
}

// buildPrompt renders the context snapshot through the prompt template.
func (e *Executor) buildPrompt(contextBlob json.RawMessage) (string, error) {
	if len(contextBlob) == 0 {
		return "", ErrEmptyContext
	}

	var data promptData
	if err := json.Unmarshal(contextBlob, &data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmptyContext, err)
	}
	if data.Title == "" {
		return "", fmt.Errorf("%w: context has no title", ErrEmptyContext)
	}

	var buf bytes.Buffer
	if err := e.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// callWithRetry calls the model, retrying transient failures with
// exponential backoff and jitter. Invalid responses and safety blocks are
// permanent and returned immediately.
func (e *Executor) callWithRetry(ctx context.Context, prompt string) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		text, err := e.generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == e.maxRetries {
			break
		}

		delay := e.baseDelay * (1 << attempt)
		delay += time.Duration(rng.Int63n(int64(delay) / 2))
		e.logger.WarnContext(ctx, "gemini call failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: %v", ErrTransientFailure, lastErr)
}

// extractText pulls the concatenated text parts from a generate response.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	text := ""
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text parts", ErrInvalidResponse)
	}

	return text, nil
}
