// Package api serves the dispatcher over HTTP, streams change events to
// WebSocket observers and exposes health and Prometheus endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"psurops/internal/auth"
	"psurops/internal/config"
	"psurops/internal/dispatch"
	"psurops/internal/intent"
	"psurops/internal/metrics"
	"psurops/internal/notify"
	"psurops/internal/slogutil"
)

// Deps are the collaborators a Server serves.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Notifier   *notify.Notifier
	Metrics    *metrics.Collector
	Auth       *auth.Authenticator
	Intents    *intent.Router
}

// Server represents the HTTP API server
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	handler  http.Handler
	addr     string
	cfg      config.ServerConfig
	logger   *slog.Logger
	d        *dispatch.Dispatcher
	notifier *notify.Notifier
	metrics  *metrics.Collector
	auth     *auth.Authenticator
	intents  *intent.Router
	upgrader websocket.Upgrader
	started  time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewAuthenticator(cfg.AuthTokenHash, nil, logger)
	}
	if deps.Intents == nil {
		deps.Intents = intent.NewRouter(nil)
	}
	s := &Server{
		addr:     cfg.Addr(),
		cfg:      cfg,
		logger:   logger.With("component", "api"),
		d:        deps.Dispatcher,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		auth:     deps.Auth,
		intents:  deps.Intents,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.registerRoutes()

	s.handler = s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.addr, "auth", s.auth.Required())

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = AuthMiddleware(s.auth)(handler)
	if s.cfg.Compress {
		handler = CompressMiddleware()(handler)
	}
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware(s.cfg.AllowedOrigins)(handler)
	return handler
}
