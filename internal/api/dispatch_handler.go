package api

import (
	"net/http"

	"github.com/cortexops/dispatch/internal/api/middleware"
	"github.com/cortexops/dispatch/internal/api/shared"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/service/dispatch"
)

// DispatchHandler serves manual dispatch and dependency management routes.
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
	checker    *dispatch.DependencyChecker
}

// NewDispatchHandler creates a DispatchHandler.
func NewDispatchHandler(dispatcher *dispatch.Dispatcher, checker *dispatch.DependencyChecker) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		checker:    checker,
	}
}

// DispatchReady handles POST /dispatch: a full dispatch cycle over the
// authenticated tenant's ready tasks.
func (h *DispatchHandler) DispatchReady(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	stats, err := h.dispatcher.DispatchTenant(r.Context(), tenantID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// DispatchOne handles POST /tasks/{id}/dispatch: queue one task now,
// subject to all the usual gates.
func (h *DispatchHandler) DispatchOne(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.dispatcher.DispatchOne(r.Context(), tenantID, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewEntryResponse(entry))
}

// AddDependency handles POST /tasks/{id}/dependencies.
func (h *DispatchHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req DependencyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"depends_on_task_id and a valid type are required")
		return
	}

	dep, err := h.checker.AddDependency(r.Context(),
		tenantID, taskID, req.DependsOnTaskID, domain.DependencyType(req.Type))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, dep)
}
