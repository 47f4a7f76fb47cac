/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/accounts/*      Account registry
  /api/charges/*       Charge ledger
  /api/settlements/*   Checkpointed settlement
  /api/reports/*       Period reports
  /api/calendar/*      Exclusion calendar and holiday ranges
  /api/floor           Global counting floor
  /api/sweep           Manual notification sweep

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// Account registry
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.RegisterAccount)
			r.Get("/{code}", h.GetAccount)
			r.Delete("/{code}", h.DeactivateAccount)
			r.Post("/{code}/default", h.SetDefaultAccount)
			r.Put("/{code}/base", h.SetBaseOverride)
			r.Delete("/{code}/base", h.ClearBaseOverride)
			r.Put("/{code}/service-start", h.SetServiceStart)
		})

		// Charge ledger
		r.Route("/charges", func(r chi.Router) {
			r.Get("/", h.QueryCharges)
			r.Post("/", h.AppendCharge)
			r.Delete("/{id}", h.RemoveCharge)
		})

		// Settlement
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/", h.RecordSettlement)
			r.Get("/{code}", h.SettlementHistory)
		})

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.GetReport)
			r.Get("/current", h.GetCurrentReport)
			r.Get("/week", h.GetWeekReport)
			r.Get("/month", h.GetMonthReport)
			r.Get("/year", h.GetYearReport)
		})

		// Calendar
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/days", h.ListExclusionDays)
			r.Post("/days", h.AddExclusionDay)
			r.Delete("/days/{date}", h.RemoveExclusionDay)
			r.Get("/ranges", h.ListHolidayRanges)
			r.Post("/ranges", h.AddHolidayRange)
		})

		// Admin
		r.Get("/floor", h.GetGlobalFloor)
		r.Put("/floor", h.SetGlobalFloor)
		r.Post("/sweep", h.RunSweep)
	})

	return r
}
