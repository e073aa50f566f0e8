package api

import (
	"errors"
	"net/http"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/service/auth"
	"github.com/cortexops/dispatch/internal/service/dispatch"
	"github.com/cortexops/dispatch/internal/service/queue"
	"github.com/cortexops/dispatch/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrDependencyNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrActiveEntryExists),
		errors.Is(err, store.ErrDependencyExists),
		errors.Is(err, dispatch.ErrDependencyCycle),
		errors.Is(err, queue.ErrEntryNotClaimable):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, queue.ErrResultTooShort),
		errors.Is(err, domain.ErrSelfDependency),
		errors.Is(err, domain.ErrInvalidDependencyType):
		return http.StatusBadRequest

	// Dispatch gate refusals
	case errors.Is(err, dispatch.ErrTaskNotReady),
		errors.Is(err, dispatch.ErrUnmetDependencies),
		errors.Is(err, dispatch.ErrTaskBlocked):
		return http.StatusConflict

	// A suspect result is accepted for processing but routed to failure.
	case errors.Is(err, queue.ErrSuspectResult):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error. Internal detail stays in the server logs.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrEntryNotFound):
		return "Queue entry not found"

	case errors.Is(err, store.ErrActiveEntryExists):
		return "Task already has an active queue entry"

	case errors.Is(err, store.ErrDependencyExists):
		return "Dependency already exists"

	case errors.Is(err, dispatch.ErrDependencyCycle):
		return "Dependency would create a cycle"

	case errors.Is(err, dispatch.ErrTaskNotReady):
		return "Task is not ready for dispatch"

	case errors.Is(err, dispatch.ErrUnmetDependencies):
		return "Task has unmet blocking dependencies"

	case errors.Is(err, dispatch.ErrTaskBlocked):
		return "Task is blocked by the circuit breaker"

	case errors.Is(err, queue.ErrEntryNotClaimable):
		return "Queue entry is not in a workable state"

	case errors.Is(err, queue.ErrResultTooShort):
		return "Result content is too short"

	case errors.Is(err, queue.ErrSuspectResult):
		return "Result matched a failure indicator and was routed to the failure path"

	case errors.Is(err, domain.ErrSelfDependency):
		return "Task cannot depend on itself"

	case errors.Is(err, domain.ErrInvalidDependencyType):
		return "Invalid dependency type"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}
