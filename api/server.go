/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/health           Liveness
  /api/ingest           Dataset replacement
  /api/aggregate        Filtered rollups
  /api/goals/*          Goal snapshots, adjustments, overrides
  /api/redistribution   Weekly target rebalancing

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/ingest", h.Ingest)
		r.Post("/aggregate", h.Aggregate)

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.ListGoalMonths)
			r.Post("/", h.SaveGoals)
			r.Get("/{monthKey}", h.GetGoals)
			r.Delete("/{monthKey}", h.DeleteGoals)
			r.Get("/export/{monthKey}", h.ExportGoals)
			r.Post("/clients", h.SetClientGoal)
			r.Post("/adjustments", h.SetAdjustment)
			r.Post("/overrides", h.SetOverride)
		})

		r.Post("/redistribution", h.Redistribute)
	})

	return r
}
