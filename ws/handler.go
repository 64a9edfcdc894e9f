package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wahl-chat/wahl-chat-backend/chat"
	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Inbound event names.
const (
	eventSessionInit = "session_init"
	eventUserMessage = "user_message"
)

// connHandler manages a single client connection for its whole lifetime.
type connHandler struct {
	server    *Server
	conn      *websocket.Conn
	emitter   *connEmitter
	logger    *slog.Logger
	startTime time.Time

	mu        sync.Mutex
	sessions  map[string]bool
	turnLocks map[string]*sync.Mutex
	turns     sync.WaitGroup
}

// turnLock returns the mutex serializing turns for one session. Turns on
// different sessions keep running concurrently.
func (h *connHandler) turnLock(sessionID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.turnLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		h.turnLocks[sessionID] = lock
	}
	return lock
}

// run reads inbound events until the client disconnects.
func (h *connHandler) run(ctx context.Context) {
	defer h.cleanup()

	h.server.connCount.Add(1)
	h.logger.Info("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		var msg envelope
		if err := h.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("connection read failed", "error", err)
			}
			return
		}
		h.dispatch(ctx, msg)
	}
}

func (h *connHandler) dispatch(ctx context.Context, msg envelope) {
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		h.logger.Warn("unreadable event payload", "event", msg.Event, "error", err)
		return
	}

	switch msg.Event {
	case eventSessionInit:
		var req chat.InitSessionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			h.emitInitError(err)
			return
		}
		if err := h.server.orchestrator.InitSession(ctx, h.emitter, req); err != nil {
			h.logger.Warn("session init failed", "session_id", req.SessionID, "error", err)
			return
		}
		if req.SessionID != "" {
			h.mu.Lock()
			h.sessions[req.SessionID] = true
			h.mu.Unlock()
		}

	case eventUserMessage:
		var req chat.UserMessageRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			h.emitTurnError(req.SessionID, err)
			return
		}
		// One goroutine per turn; the read loop stays responsive. Turns on
		// the same session run one at a time so a follow-up message never
		// races the previous turn's history and stream updates.
		h.turns.Add(1)
		go func() {
			defer h.turns.Done()
			lock := h.turnLock(req.SessionID)
			lock.Lock()
			defer lock.Unlock()
			if err := h.server.orchestrator.HandleUserMessage(ctx, h.emitter, req); err != nil {
				h.logger.Warn("turn failed", "session_id", req.SessionID, "error", err)
			}
		}()

	default:
		h.logger.Debug("ignoring unknown event", "event", msg.Event)
	}
}

func (h *connHandler) emitInitError(err error) {
	_ = h.emitter.Emit(chat.EventSessionInitialized, chat.SessionInitializedPayload{
		Status: core.Failed(err.Error()),
	})
}

func (h *connHandler) emitTurnError(sessionID string, err error) {
	_ = h.emitter.Emit(chat.EventTurnComplete, chat.TurnCompletePayload{
		SessionID: sessionID,
		Status:    core.Failed(err.Error()),
	})
}

// cleanup drops this connection's sessions and closes the socket.
func (h *connHandler) cleanup() {
	h.turns.Wait()

	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.server.orchestrator.Sessions().Drop(id)
	}

	h.conn.Close()
	h.server.connCount.Add(-1)
	h.logger.Info("connection closed",
		"duration_ms", time.Since(h.startTime).Milliseconds(),
		"sessions", len(ids),
	)
}
