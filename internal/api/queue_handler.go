package api

import (
	"net/http"
	"strconv"

	"github.com/cortexops/dispatch/internal/api/middleware"
	"github.com/cortexops/dispatch/internal/api/shared"
	"github.com/cortexops/dispatch/internal/service/queue"
	"github.com/cortexops/dispatch/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// QueueHandler serves the queue entry state transition routes.
type QueueHandler struct {
	queueService *queue.Service
	logStore     store.DispatchLogStore
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(queueService *queue.Service, logStore store.DispatchLogStore) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
		logStore:     logStore,
	}
}

// Claim handles POST /entries/{id}/claim.
func (h *QueueHandler) Claim(w http.ResponseWriter, r *http.Request) {
	entryID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req ClaimRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "claimed_by is required")
		return
	}

	claimed, err := h.queueService.Claim(r.Context(), entryID, req.ClaimedBy)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusOK
	if !claimed {
		// Someone else advanced the entry first.
		status = http.StatusConflict
	}
	shared.RespondWithJSON(w, r, status, ClaimResponse{Claimed: claimed, EntryID: entryID})
}

// Complete handles POST /entries/{id}/complete.
func (h *QueueHandler) Complete(w http.ResponseWriter, r *http.Request) {
	entryID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CompleteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "result is required")
		return
	}

	if err := h.queueService.Complete(r.Context(), entryID, req.Result); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "completed"})
}

// Fail handles POST /entries/{id}/fail.
func (h *QueueHandler) Fail(w http.ResponseWriter, r *http.Request) {
	entryID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req FailRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "error is required")
		return
	}

	if err := h.queueService.Fail(r.Context(), entryID, req.Error); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "recorded"})
}

// CancelTask handles POST /tasks/{id}/cancel.
func (h *QueueHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	cancelled, err := h.queueService.CancelTask(r.Context(), taskID, req.Reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

// ResetQuarantine handles POST /queue/quarantine/reset for the
// authenticated tenant.
func (h *QueueHandler) ResetQuarantine(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	reset, err := h.queueService.ResetQuarantine(r.Context(), tenantID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ResetResponse{Reset: reset})
}

// Stats handles GET /queue/stats for the authenticated tenant.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	stats, err := h.queueService.Stats(r.Context(), tenantID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// TaskLog handles GET /tasks/{id}/log. The optional limit query parameter
// caps the number of records returned, newest first.
func (h *QueueHandler) TaskLog(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	entries, err := h.logStore.ListForTask(r.Context(), taskID, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, entries)
}

// parseIDParam extracts and parses a UUID path parameter, writing a 400
// response on failure.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}
