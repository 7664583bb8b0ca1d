package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahilrshah/productivity-app/internal/api"
	apiMiddleware "github.com/rahilrshah/productivity-app/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	agentHandler := api.NewAgentHandler(app.orchestrator, app.threadStore, app.jobStore, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/agent", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Post("/interact", agentHandler.Interact)
		r.Get("/interact", agentHandler.ThreadHistory)
		r.Get("/threads", agentHandler.ListThreads)
		r.Get("/jobs/{jobID}", agentHandler.GetJob)
		r.Get("/events", app.hub.ServeWS)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.db.PingContext(r.Context()); err != nil {
			app.logger.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
