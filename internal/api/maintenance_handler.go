package api

import (
	"net/http"

	"github.com/cortexops/dispatch/internal/api/shared"
	"github.com/cortexops/dispatch/internal/domain"
	"github.com/cortexops/dispatch/internal/service/executor"
	"github.com/cortexops/dispatch/internal/service/sweep"
)

// MaintenanceHandler serves queue cleanup and executor runner routes.
type MaintenanceHandler struct {
	sweeper *sweep.Sweeper
	runner  *executor.Runner
}

// NewMaintenanceHandler creates a MaintenanceHandler.
func NewMaintenanceHandler(sweeper *sweep.Sweeper, runner *executor.Runner) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		runner:  runner,
	}
}

// Cleanup handles POST /queue/cleanup. The request selects a sweep mode;
// dry_run reports candidates without touching anything.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"mode must be one of: duplicates, stale, sync, orphans, all")
		return
	}

	mode, err := sweep.ParseMode(req.Mode)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown sweep mode")
		return
	}

	report, err := h.sweeper.Run(r.Context(), mode, req.DryRun)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// RunExecutor handles POST /queue/run: one on-demand runner batch. The
// body may select an executor class and batch limit; an empty body runs
// the configured defaults.
func (h *MaintenanceHandler) RunExecutor(w http.ResponseWriter, r *http.Request) {
	var req RunExecutorRequest
	if r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"executor_class must be one of: agent, human_assisted, human_only; limit must be 1-1000")
			return
		}
	}

	stats, err := h.runner.RunBatchFor(r.Context(), domain.ExecutorClass(req.ExecutorClass), req.Limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
