package mcp

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"psurops/internal/dispatch"
	"psurops/internal/notify"
	"psurops/internal/slogutil"
)

// MCPServer represents the MCP server
type MCPServer struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	writeMu sync.Mutex
	logger  *slog.Logger
	version string

	d        *dispatch.Dispatcher
	notifier *notify.Notifier

	mu          sync.RWMutex
	clientName  string
	initialized bool
}

// NewMCPServer creates a server over d. When notifier is set, change events
// are forwarded to the client as notifications/message while Start runs.
func NewMCPServer(version string, d *dispatch.Dispatcher, notifier *notify.Notifier, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &MCPServer{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		logger:   logger.With("component", "mcp"),
		version:  version,
		d:        d,
		notifier: notifier,
	}
}

// Start processes messages until stdin closes or ctx is cancelled.
func (s *MCPServer) Start(ctx context.Context) error {
	s.logger.Info("MCP server starting", "version", s.version, "operations", len(s.d.Operations()))

	if s.notifier != nil {
		unsubscribe := s.notifier.Subscribe("mcp", s.eventObserver())
		defer unsubscribe()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)")
				return nil
			}
			var perr errParse
			if stderrors.As(err, &perr) {
				s.logger.Warn("Malformed message", "error", err.Error())
				_ = s.writeMessage(NewErrorMessage(nil, ParseError, err.Error(), nil))
				continue
			}
			return err
		}

		if response := s.handleMessage(ctx, msg); response != nil {
			if err := s.writeMessage(response); err != nil {
				s.logger.Error("Error writing response", "error", err.Error())
			}
		}
	}
}

// SetStdin sets the input stream (for testing)
func (s *MCPServer) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil
}

// SetStdout sets the output stream (for testing)
func (s *MCPServer) SetStdout(w io.Writer) {
	s.stdout = w
}

// Initialized reports whether the client completed the handshake.
func (s *MCPServer) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SendNotification sends a JSON-RPC notification to the client
func (s *MCPServer) SendNotification(method string, params interface{}) error {
	return s.writeMessage(NewNotificationMessage(method, params))
}

// eventObserver forwards change events as log-message notifications.
func (s *MCPServer) eventObserver() notify.Observer {
	return notify.ObserverFunc(func(ctx context.Context, e notify.Event) error {
		return s.SendNotification("notifications/message", map[string]interface{}{
			"level":  "info",
			"logger": "psurops.events",
			"data":   e,
		})
	})
}
