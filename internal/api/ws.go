package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"psurops/internal/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// checkOrigin applies the configured origin list to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin || o == u.Host {
			return true
		}
	}
	return false
}

// wsObserver forwards events to one WebSocket connection.
type wsObserver struct {
	conn *websocket.Conn
}

func (o *wsObserver) Deliver(ctx context.Context, e notify.Event) error {
	if err := o.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return o.conn.WriteJSON(e)
}

// handleWebSocket subscribes the connection to change events until the
// client goes away. Incoming messages are ignored apart from control frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "change events are not enabled", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	name := "ws:" + r.RemoteAddr
	if id := GetRequestID(r.Context()); id != "" {
		name = "ws:" + id
	}
	unsubscribe := s.notifier.Subscribe(name, &wsObserver{conn: conn})
	defer unsubscribe()
	s.logger.Info("websocket observer connected", "observer", name)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.logger.Info("websocket observer disconnected", "observer", name)
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
