package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"contract-relay/internal/middleware"
	"contract-relay/internal/models"
	"contract-relay/internal/repository"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Source streams the event payloads published for one session, calling
// deliver for each, until ctx is cancelled.
type Source interface {
	Stream(ctx context.Context, sessionID string, deliver func([]byte))
}

// RedisSource reads session events from Redis pub/sub so any instance can
// serve a socket regardless of which instance ran the validation.
type RedisSource struct {
	client *redis.Client
}

func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Stream(ctx context.Context, sessionID string, deliver func([]byte)) {
	pubsub := s.client.Subscribe(ctx, repository.UpdatesChannel(sessionID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			deliver([]byte(msg.Payload))
		}
	}
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps the open sockets of each session. With a Source it relays what
// the source streams; without one, Publish delivers in process.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*client
	cancelFuncs map[string]context.CancelFunc
	source      Source
	logger      *zap.Logger
}

func NewHub(source Source, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*client),
		cancelFuncs: make(map[string]context.CancelFunc),
		source:      source,
		logger:      logger.Named("ws"),
	}
}

// HandleWebSocket upgrades a request that already passed the session token
// middleware.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.register(sessionID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(sessionID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) register(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], c)

	// First socket for the session opens its subscription.
	if len(h.connections[sessionID]) == 1 && h.source != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.source.Stream(ctx, sessionID, func(data []byte) {
			h.broadcast(sessionID, data)
		})
	}

	h.logger.Debug("WebSocket connected",
		zap.String("session_id", sessionID),
		zap.Int("total", len(h.connections[sessionID])),
	)
}

func (h *Hub) unregister(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	h.logger.Debug("WebSocket disconnected", zap.String("session_id", sessionID))
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("WebSocket write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// Publish delivers msg to the session's sockets on this instance.
func (h *Hub) Publish(ctx context.Context, sessionID string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast(sessionID, data)
	return nil
}

// Connections reports the open sockets for a session.
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// Close drops every socket and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, conns := range h.connections {
		for _, c := range conns {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
		}
	}
	h.connections = make(map[string][]*client)
	h.cancelFuncs = make(map[string]context.CancelFunc)
}
