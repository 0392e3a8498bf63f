package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davmor83/labrig-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Credential exchange (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)

			// Instrument endpoints
			r.Route("/instruments", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermInstrumentRead))

				r.Get("/", s.handleListInstruments)
				r.Get("/stats", s.handleInstrumentStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetInstrument)
					r.Get("/attributes", s.handleListAttributes)
					r.Get("/attributes/*", s.handleGetAttribute)

					// Measurement operations
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermInstrumentOperate))
						r.Post("/measure", s.handleMeasure)
						r.Post("/initiate", s.handleInitiate)
						r.Post("/fetch", s.handleFetch)
						r.Post("/abort", s.handleAbort)
						r.Post("/trigger", s.handleSoftwareTrigger)
						r.Post("/self-test", s.handleSelfTest)
					})

					// Setup changes
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermInstrumentConfigure))
						r.Put("/attributes/*", s.handleSetAttribute)
						r.Post("/memory/{slot}/save", s.handleSaveMemory)
						r.Post("/memory/{slot}/recall", s.handleRecallMemory)
						r.Post("/reset", s.handleReset)
					})
				})
			})

			// Archive endpoints
			r.Route("/archive", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermArchiveRead))

				r.Get("/measurements", s.handleListMeasurements)
				r.Get("/attribute-writes", s.handleListAttributeWrites)
				r.Get("/stats", s.handleArchiveStats)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermArchiveManage))
					r.Post("/prune", s.handlePruneArchive)
				})
			})

			// User management
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Get("/sessions", s.handleListUserSessions)
					r.Delete("/sessions", s.handleRevokeUserSessions)
					r.Get("/instruments", s.handleGetUserInstruments)
					r.Put("/instruments", s.handleSetUserInstruments)
				})
			})

			// Station management
			r.Route("/stations", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermStationManage))

				r.Get("/", s.handleListStations)
				r.Post("/", s.handleCreateStation)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetStation)
					r.Patch("/", s.handleUpdateStation)
					r.Delete("/", s.handleDeleteStation)
					r.Get("/instruments", s.handleGetStationInstruments)
					r.Put("/instruments", s.handleSetStationInstruments)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
