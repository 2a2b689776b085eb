package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "read-only API")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	DeviceID     string `json:"device_id"`
	MQTT         bool   `json:"mqtt"`
	DeviceOnline bool   `json:"device_online"`
}

// handleHealth reports 200 while the broker session is up, 503 otherwise.
// An offline device degrades the status but is not a bridge failure.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m := s.bridge.Metrics()

	resp := HealthResponse{
		Status:       "ok",
		Version:      s.version,
		DeviceID:     m.DeviceID,
		MQTT:         m.MQTTConnected,
		DeviceOnline: m.DeviceOnline,
	}

	status := http.StatusOK
	switch {
	case !m.MQTTConnected:
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	case !m.DeviceOnline:
		resp.Status = "degraded"
	}

	writeJSON(w, status, resp)
}

// handleState returns the last-known device state.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.State())
}
