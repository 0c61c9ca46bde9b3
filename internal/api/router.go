package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
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

		// WebSocket upgrade. Browsers cannot set an Authorization header
		// on an upgrade request, so auth is via single-use ticket,
		// validated in the handler before the upgrade.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - caller must hold a valid
			// access token to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Gateway endpoints
			r.Route("/gateways", func(r chi.Router) {
				r.Post("/claim", s.handleClaimGateway)
				r.Post("/{id}/discover", s.handleDiscoverGateway)
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Post("/", s.handleCreateDevice)
				r.Post("/link-model", s.handleLinkModel)
				r.Post("/{id}/command", s.handleDeviceCommand)
			})

			// Model definitions
			r.Post("/models", s.handleUpsertModel)

			// Telemetry queries
			r.Get("/telemetry", s.handleQueryTelemetry)

			// Maintenance (admin only, checked in handler)
			r.Post("/system/telemetry/purge", s.handlePurgeTelemetry)
		})
	})

	return r
}

// healthCheckTimeout bounds the database ping inside the health handler.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status, including the database
// and MQTT transport where those dependencies are wired.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}

	if s.bridge != nil {
		st := s.bridge.Status()
		body["bridge"] = map[string]any{
			"running":        st.Running,
			"mqtt_connected": st.TransportConnected,
		}
		if !st.TransportConnected {
			body["status"] = "degraded"
		}
	}

	if s.hub != nil {
		body["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, body)
}
