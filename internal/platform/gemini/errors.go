package gemini

import "errors"

// Errors returned by the Gemini executor.
var (
	// ErrInvalidConfig indicates the executor configuration is unusable.
	ErrInvalidConfig = errors.New("invalid gemini executor configuration")

	// ErrEmptyContext indicates the queue entry carried no usable context
	// snapshot.
	ErrEmptyContext = errors.New("empty execution context")

	// ErrInvalidResponse indicates the API responded with something the
	// executor cannot use. Not retried.
	ErrInvalidResponse = errors.New("invalid response from gemini API")

	// ErrContentBlocked indicates the safety filters rejected the prompt
	// or the response. Not retried.
	ErrContentBlocked = errors.New("content blocked by gemini safety filters")

	// ErrTransientFailure indicates the API kept failing with errors that
	// looked retryable until the retry budget ran out.
	ErrTransientFailure = errors.New("transient gemini API failure")
)
