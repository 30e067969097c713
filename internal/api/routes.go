package api

import (
	"net/http"

	"psurops/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health and readiness checks
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /metrics", s.handleMetrics)

	// Operation vocabulary
	s.router.HandleFunc("POST /tool", s.handleTool)
	s.router.HandleFunc("GET /tools", s.handleTools)
	s.router.HandleFunc("POST /classify", s.handleClassify)

	// Read-only views
	s.router.HandleFunc("GET /records", s.handleRecords)
	s.router.HandleFunc("GET /records/{identifier}", s.handleRecord)
	s.router.HandleFunc("GET /stats", s.handleStats)

	// Change events
	s.router.HandleFunc("GET /ws", s.handleWebSocket)

	s.router.HandleFunc("GET /{$}", s.handleRoot)
}

// handleRoot describes the service
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, map[string]interface{}{
		"name":    "psurops",
		"version": version.Info(),
		"endpoints": []string{
			"POST /tool", "GET /tools", "POST /classify",
			"GET /records", "GET /records/{identifier}", "GET /stats",
			"GET /ws", "GET /health", "GET /ready", "GET /metrics",
		},
	}, http.StatusOK)
}
