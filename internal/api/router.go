package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	// Prometheus metrics (no auth; bind the listener privately if needed)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Appliance pairing and session lifecycle
		r.Route("/auth", func(r chi.Router) {
			r.Get("/session", s.handleSessionStatus)
			r.Post("/register", s.handleRegister)
			r.Get("/track/{id}", s.handleTrackRegistration)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Delete("/credential", s.handleDeleteCredential)
			r.Post("/ws-ticket", s.handleWSTicket)
		})

		// Generic authenticated pass-through to appliance resources
		r.HandleFunc("/box/*", s.handleBoxProxy)

		// Scheduled reboot
		r.Route("/reboot", func(r chi.Router) {
			r.Get("/schedule", s.handleGetRebootSchedule)
			r.Put("/schedule", s.handlePutRebootSchedule)
		})

		// Live connection status feed (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status along with the state of
// the appliance link and optional backends.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":        "ok",
		"version":       s.version,
		"registered":    s.sessions.IsRegistered(),
		"authenticated": s.sessions.IsAuthenticated(),
		"subscribers":   s.broadcaster.SubscriberCount(),
	}

	// Probe the appliance when a session is held; a token the appliance no
	// longer honours should surface here, not on the next proxied call.
	if s.sessions.IsAuthenticated() {
		loggedIn, err := s.sessions.CheckSession(r.Context())
		switch {
		case err != nil:
			health["session"] = "unreachable"
			health["status"] = "degraded"
		case !loggedIn:
			health["session"] = "stale"
			health["status"] = "degraded"
		default:
			health["session"] = "ok"
		}
	}

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["database"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, health)
}
