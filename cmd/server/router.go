package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortexops/dispatch/internal/api"
	apiMiddleware "github.com/cortexops/dispatch/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	queueHandler := api.NewQueueHandler(app.queueService, app.logStore)
	dispatchHandler := api.NewDispatchHandler(app.dispatcher, app.depChecker)
	maintenanceHandler := api.NewMaintenanceHandler(app.sweeper, app.runner)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Queue entry lifecycle
			r.Post("/queue/entries/{id}/claim", queueHandler.Claim)
			r.Post("/queue/entries/{id}/complete", queueHandler.Complete)
			r.Post("/queue/entries/{id}/fail", queueHandler.Fail)

			// Dispatch
			r.Post("/queue/dispatch", dispatchHandler.DispatchReady)
			r.Post("/tasks/{id}/dispatch", dispatchHandler.DispatchOne)
			r.Post("/tasks/{id}/dependencies", dispatchHandler.AddDependency)
			r.Post("/tasks/{id}/cancel", queueHandler.CancelTask)
			r.Get("/tasks/{id}/log", queueHandler.TaskLog)

			// Queue operations
			r.Get("/queue/stats", queueHandler.Stats)
			r.Post("/queue/quarantine/reset", queueHandler.ResetQuarantine)
			r.Post("/queue/cleanup", maintenanceHandler.Cleanup)
			r.Post("/queue/run", maintenanceHandler.RunExecutor)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
