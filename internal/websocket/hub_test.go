package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contract-relay/internal/middleware"
	"contract-relay/internal/models"
)

type chanSource struct {
	mu      sync.Mutex
	streams map[string]chan []byte
	started chan string
}

func newChanSource() *chanSource {
	return &chanSource{streams: map[string]chan []byte{}, started: make(chan string, 4)}
}

func (s *chanSource) Stream(ctx context.Context, sessionID string, deliver func([]byte)) {
	ch := make(chan []byte, 4)
	s.mu.Lock()
	s.streams[sessionID] = ch
	s.mu.Unlock()
	s.started <- sessionID

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ch:
			deliver(data)
		}
	}
}

func (s *chanSource) send(sessionID string, data []byte) {
	s.mu.Lock()
	ch := s.streams[sessionID]
	s.mu.Unlock()
	ch <- data
}

func startServer(t *testing.T, hub *Hub) (*httptest.Server, *middleware.SessionTokens) {
	t.Helper()
	tokens := middleware.NewSessionTokens("test-secret", time.Hour)

	r := chi.NewRouter()
	r.With(tokens.Middleware).Get("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_PublishReachesSessionSockets(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	defer hub.Close()
	srv, tokens := startServer(t, hub)

	tok, _, err := tokens.Issue("s1")
	require.NoError(t, err)
	conn := dial(t, srv, tok)

	require.Eventually(t, func() bool { return hub.Connections("s1") == 1 }, time.Second, 5*time.Millisecond)

	err = hub.Publish(context.Background(), "s1", models.WSMessage{
		Type:    models.EventValidationCompleted,
		Payload: models.ValidationEvent{SessionID: "s1", Status: models.ValidationCompleted, Result: "Overall Result: Pass"},
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string                 `json:"type"`
		Payload models.ValidationEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, models.EventValidationCompleted, msg.Type)
	assert.Equal(t, "Overall Result: Pass", msg.Payload.Result)

	// Other sessions see nothing.
	require.NoError(t, hub.Publish(context.Background(), "s2", models.WSMessage{Type: "x"}))
}

func TestHub_SourceSubscriptionLifecycle(t *testing.T) {
	source := newChanSource()
	hub := NewHub(source, zap.NewNop())
	defer hub.Close()
	srv, tokens := startServer(t, hub)

	tok, _, err := tokens.Issue("s1")
	require.NoError(t, err)
	first := dial(t, srv, tok)
	second := dial(t, srv, tok)

	select {
	case id := <-source.started:
		assert.Equal(t, "s1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not started")
	}
	require.Eventually(t, func() bool { return hub.Connections("s1") == 2 }, time.Second, 5*time.Millisecond)

	source.send("s1", []byte(`{"type":"validation.started"}`))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"validation.started"}`, string(data))
	}

	first.Close()
	second.Close()
	require.Eventually(t, func() bool { return hub.Connections("s1") == 0 }, 2*time.Second, 5*time.Millisecond)

	select {
	case <-source.started:
		t.Fatal("second subscription opened for the same session")
	default:
	}
}

func TestHub_RejectsMissingToken(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	srv, _ := startServer(t, hub)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
