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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/entitlements/*   Entitlement balances and breakdowns
  /api/leave-requests/* Request balances and retroactive recalculation
  /api/contacts/*       Grouped balance snapshots, TOIL
  /api/balance-changes  Raw ledger access
  /api/expiry/*         Manual expiry runs
  /api/admin/*          Reference record management
  /api/reset            Database reset (dev only)

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
		// Entitlement routes
		r.Route("/entitlements/{id}", func(r chi.Router) {
			r.Get("/balance", h.GetEntitlementBalance)
			r.Get("/breakdown", h.GetEntitlementBreakdown)
			r.Get("/leave-balance", h.GetEntitlementLeaveBalance)
			r.Delete("/balance-changes", h.DeleteEntitlementBalanceChanges)
		})

		// Leave request routes
		r.Route("/leave-requests/{id}", func(r chi.Router) {
			r.Get("/breakdown", h.GetLeaveRequestBreakdown)
			r.Get("/balance", h.GetLeaveRequestBalance)
			r.Post("/recalculate-expiry", h.RecalculateExpiry)
			r.Delete("/balance-changes", h.DeleteLeaveRequestBalanceChanges)
		})

		// Contact routes
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/balances", h.GetContactBalances)
			r.Get("/open-balances", h.GetContactOpenBalances)
			r.Get("/{id}/toil", h.GetContactTOIL)
		})

		// Raw ledger routes
		r.Route("/balance-changes", func(r chi.Router) {
			r.Post("/", h.CreateBalanceChange)
			r.Delete("/", h.DeleteBalanceChanges)
		})

		// Expiry routes
		r.Route("/expiry", func(r chi.Router) {
			r.Post("/run", h.TriggerExpiry)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/periods", h.SavePeriod)
			r.Post("/entitlements", h.SaveEntitlement)
			r.Post("/contracts", h.SaveContract)
			r.Post("/leave-requests", h.SaveLeaveRequest)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
