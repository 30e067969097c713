package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"psurops/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Backends  map[string]bool   `json:"backends"`
	Details   map[string]string `json:"details,omitempty"`
	Observers int               `json:"observers"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Info(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}, http.StatusOK)
}

// handleReady pings the record backend
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	store := s.d.Store()
	name := store.Backend().Name()
	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Backends:  map[string]bool{name: true},
		Details:   map[string]string{"go": runtime.Version()},
	}
	if s.notifier != nil {
		resp.Observers = len(s.notifier.Subscribers())
	}
	status := http.StatusOK
	if err := store.Ping(ctx); err != nil {
		resp.Status = "not_ready"
		resp.Backends[name] = false
		resp.Details[name] = err.Error()
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, resp, status)
}
