package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/logger"
)

// Server is the host-document boundary: the browser content script connects
// over a websocket, streams selection/scroll/resize/mutation notifications
// in, and receives overlay render updates back. One page is driven at a
// time; a new connection replaces the previous one, mirroring the
// singleton-overlay rule.
type Server struct {
	upgrader websocket.Upgrader
	eventCh  chan domain.HostEvent

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// The daemon binds locally; the extension connects from page origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		eventCh: make(chan domain.HostEvent, 64),
	}
}

// Events exposes decoded host notifications. The host is uncontrolled:
// consumers must not assume events are complete or perfectly ordered.
func (s *Server) Events() <-chan domain.HostEvent {
	return s.eventCh
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Upgrading host connection", logger.Err(err))
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	slog.Info("Host document connected", "remote", conn.RemoteAddr().String())

	for {
		var event domain.HostEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Host connection closed unexpectedly", logger.Err(err))
			}
			break
		}

		select {
		case s.eventCh <- event:
		default:
			// Host event bursts beyond the buffer are shed; anchor ticks are
			// idempotent and selections re-trigger naturally.
			slog.Warn("Host event buffer full, dropping event", "type", event.Type)
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	slog.Info("Host document disconnected")
}

// SendUpdate ships one render update to the connected host, if any. Delivery
// is best-effort; the core's correctness never depends on the host reading it.
func (s *Server) SendUpdate(ctx context.Context, update *domain.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		slog.DebugContext(ctx, "No host connected, dropping update", "kind", update.Kind)
		return
	}

	if err := s.conn.WriteJSON(encodeUpdate(update)); err != nil {
		slog.ErrorContext(ctx, "Writing update to host", "kind", update.Kind, logger.Err(err))
	}
}

// Close drops the current host connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
