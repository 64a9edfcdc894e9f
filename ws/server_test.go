package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wahl-chat/wahl-chat-backend/backend"
	"github.com/wahl-chat/wahl-chat-backend/chat"
	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
	"github.com/wahl-chat/wahl-chat-backend/retrieval"
)

type stubUtility struct{}

func (stubUtility) GenerateText(ctx context.Context, messages []core.Message) (string, error) {
	return "Suchanfrage", nil
}

func (stubUtility) GenerateObject(ctx context.Context, messages []core.Message) ([]byte, error) {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "bestimmst die Gesprächspartner"):
		return json.Marshal(map[string]any{"party_id_list": []string{"spd"}})
	case strings.Contains(system, "Titel und Quick Replies"):
		return json.Marshal(map[string]any{"chat_title": "Rente", "quick_replies": []string{"Mehr dazu"}})
	}
	return nil, errors.New("unexpected structured prompt")
}

func (stubUtility) StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error) {
	return nil, errors.New("utility backend does not stream")
}

type stubChat struct{}

func (stubChat) GenerateText(ctx context.Context, messages []core.Message) (string, error) {
	return "", errors.New("chat backend only streams")
}

func (stubChat) GenerateObject(ctx context.Context, messages []core.Message) ([]byte, error) {
	return nil, errors.New("chat backend only streams")
}

func (stubChat) StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error) {
	stream := core.NewStream(ctx, 4)
	go func() {
		stream.Push(core.StreamEvent{Type: core.EventTextDelta, TextDelta: "Hallo aus dem Chat."})
		stream.Push(core.StreamEvent{Type: core.EventFinish})
		stream.Close()
	}()
	return stream, nil
}

// slowChat waits before streaming so overlapping turns on one session would
// interleave their chunk streams.
type slowChat struct{ delay time.Duration }

func (slowChat) GenerateText(ctx context.Context, messages []core.Message) (string, error) {
	return "", errors.New("chat backend only streams")
}

func (slowChat) GenerateObject(ctx context.Context, messages []core.Message) ([]byte, error) {
	return nil, errors.New("chat backend only streams")
}

func (s slowChat) StreamText(ctx context.Context, messages []core.Message) (*core.Stream, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	stream := core.NewStream(ctx, 4)
	go func() {
		stream.Push(core.StreamEvent{Type: core.EventTextDelta, TextDelta: "Langsame Antwort."})
		stream.Push(core.StreamEvent{Type: core.EventFinish})
		stream.Close()
	}()
	return stream, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, query, namespace string, topK int, minScore float64) ([]core.EvidenceItem, error) {
	return nil, nil
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, stubChat{})
}

func newTestServerWith(t *testing.T, chatClient backend.Client) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := prompts.Default()
	if err != nil {
		t.Fatalf("loading prompts: %v", err)
	}
	settings := chat.DefaultSettings()
	settings.TurnTimeout = 5 * time.Second
	settings.ChunkDelay = 0

	directory := chat.NewStaticDirectory([]core.Party{{ID: "spd", Name: "SPD"}}, nil)
	router := backend.NewRouter(backend.WithLogger(logger))
	chatPool := backend.NewPool(&backend.Descriptor{
		Name: "chat", Client: chatClient, Sizes: []backend.Size{backend.SizeSmall, backend.SizeLarge}, Priority: 1,
	})
	utilityPool := backend.NewPool(&backend.Descriptor{
		Name: "utility", Client: stubUtility{}, Sizes: []backend.Size{backend.SizeSmall}, Priority: 1,
	})
	orchestrator := chat.NewOrchestrator(
		directory, router, chatPool, utilityPool,
		retrieval.NewResolver(stubSearcher{}), registry,
		chat.WithSettings(settings), chat.WithLogger(logger),
	)
	return NewServer(orchestrator, WithLogger(logger))
}

func dialTest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) inboundEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg inboundEnvelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestConnectionTurnRoundTrip(t *testing.T) {
	server := newTestServer(t)
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Event: "session_init", Data: chat.InitSessionRequest{SessionID: "s1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	init := readEvent(t, conn)
	if init.Event != chat.EventSessionInitialized {
		t.Fatalf("event = %q", init.Event)
	}
	var initPayload chat.SessionInitializedPayload
	if err := json.Unmarshal(init.Data, &initPayload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initPayload.Status.Indicator != core.StatusSuccess {
		t.Fatalf("status = %+v", initPayload.Status)
	}

	if err := conn.WriteJSON(envelope{Event: "user_message", Data: chat.UserMessageRequest{
		SessionID: "s1", Text: "Wie steht die SPD zur Rente?", TargetProviders: []string{"spd"},
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen := map[string]bool{}
	for {
		msg := readEvent(t, conn)
		seen[msg.Event] = true
		if msg.Event == chat.EventTurnComplete {
			var payload chat.TurnCompletePayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload.Status.Indicator != core.StatusSuccess {
				t.Fatalf("turn status = %+v", payload.Status)
			}
			break
		}
	}
	for _, want := range []string{
		chat.EventRespondingProviders,
		chat.EventSourcesReady,
		chat.EventResponseChunk,
		chat.EventResponseComplete,
	} {
		if !seen[want] {
			t.Errorf("event %q never arrived", want)
		}
	}
}

func TestSameSessionTurnsRunSequentially(t *testing.T) {
	server := newTestServerWith(t, slowChat{delay: 150 * time.Millisecond})
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Event: "session_init", Data: chat.InitSessionRequest{SessionID: "s1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn)

	for _, text := range []string{"Erste Frage zur Rente", "Zweite Frage zur Miete"} {
		if err := conn.WriteJSON(envelope{Event: "user_message", Data: chat.UserMessageRequest{
			SessionID: "s1", Text: text, TargetProviders: []string{"spd"},
		}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var events []string
	completes := 0
	for completes < 2 {
		msg := readEvent(t, conn)
		events = append(events, msg.Event)
		if msg.Event == chat.EventTurnComplete {
			completes++
		}
	}

	firstComplete := -1
	for i, e := range events {
		if e == chat.EventTurnComplete {
			firstComplete = i
			break
		}
	}
	secondStart := -1
	announced := 0
	for i, e := range events {
		if e == chat.EventRespondingProviders {
			announced++
			if announced == 2 {
				secondStart = i
				break
			}
		}
	}
	if secondStart == -1 {
		t.Fatal("second turn never announced its providers")
	}
	if secondStart < firstComplete {
		t.Fatalf("second turn started at event %d, before turn_complete at %d", secondStart, firstComplete)
	}
}

func TestMalformedInitReportsError(t *testing.T) {
	server := newTestServer(t)
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Event: "session_init", Data: chat.InitSessionRequest{SessionID: ""}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readEvent(t, conn)
	if msg.Event != chat.EventSessionInitialized {
		t.Fatalf("event = %q", msg.Event)
	}
	var payload chat.SessionInitializedPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status.Indicator != core.StatusError {
		t.Fatalf("status = %+v", payload.Status)
	}
}

func TestDisconnectDropsSessions(t *testing.T) {
	server := newTestServer(t)
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialTest(t, srv)
	if err := conn.WriteJSON(envelope{Event: "session_init", Data: chat.InitSessionRequest{SessionID: "s-drop"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn)
	if _, ok := server.orchestrator.Sessions().Get("s-drop"); !ok {
		t.Fatal("session missing after init")
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := server.orchestrator.Sessions().Get("s-drop"); !ok && server.ConnectionCount() == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("session not dropped after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	server := newTestServer(t)
	srv := httptest.NewServer(server)
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Event: "mystery", Data: map[string]string{"x": "y"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(envelope{Event: "session_init", Data: chat.InitSessionRequest{SessionID: "s1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readEvent(t, conn); msg.Event != chat.EventSessionInitialized {
		t.Fatalf("event = %q, the unknown event must be skipped", msg.Event)
	}
}
