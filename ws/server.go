// Package ws is the WebSocket transport for the chat engine. Each connection
// gets one handler goroutine reading inbound events; user messages are
// processed off the read loop, one turn at a time per session.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wahl-chat/wahl-chat-backend/chat"
)

// Server upgrades HTTP requests and drives per-connection sessions.
type Server struct {
	orchestrator *chat.Orchestrator
	upgrader     websocket.Upgrader
	logger       *slog.Logger

	connCount atomic.Int64
}

// ServerOption customises the server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithCheckOrigin overrides the origin check, e.g. to restrict browsers to
// the public frontend.
func WithCheckOrigin(check func(*http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = check }
}

// NewServer constructs the WebSocket endpoint handler.
func NewServer(orchestrator *chat.Orchestrator, opts ...ServerOption) *Server {
	s := &Server{
		orchestrator: orchestrator,
		logger:       slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the connection and runs its session loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	handler := &connHandler{
		server:    s,
		conn:      conn,
		emitter:   newConnEmitter(conn),
		logger:    s.logger.With("conn_id", uuid.NewString()),
		startTime: time.Now(),
		sessions:  map[string]bool{},
		turnLocks: map[string]*sync.Mutex{},
	}
	handler.run(r.Context())
}

// ConnectionCount reports the live connections, for health reporting.
func (s *Server) ConnectionCount() int64 {
	return s.connCount.Load()
}

// connEmitter serializes writes to one connection. Provider tasks emit
// concurrently; gorilla connections allow a single writer at a time.
type connEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnEmitter(conn *websocket.Conn) *connEmitter {
	return &connEmitter{conn: conn}
}

// envelope frames every outbound event.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (e *connEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(envelope{Event: event, Data: payload})
}
