package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/httpx"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
)

const (
	ActionJoinAdmin = "JOIN_ADMIN"
	ActionJoinUser  = "JOIN_USER"

	eventJoined = "JOINED"
	eventError  = "ERROR"

	defaultSendBuffer   = 16
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
)

// ErrHubClosed is returned by Publish once Shutdown has run.
var ErrHubClosed = errors.New("realtime: hub is closed")

// Message is the frame delivered to subscribers.
type Message struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type command struct {
	Action string `json:"action"`
}

// Hub keeps websocket subscribers grouped by room. Delivery is best-effort: a subscriber whose
// send buffer is full is disconnected instead of blocking the publisher, and nothing is queued
// for clients that are not connected.
type Hub struct {
	upgrader     websocket.Upgrader
	origins      map[string]struct{}
	sendBuffer   int
	pingInterval time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	pumps   sync.WaitGroup
}

// Option customises a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts websocket upgrades to the given origins. An empty list accepts
// same-host requests only.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		for _, origin := range origins {
			if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
				h.origins[strings.ToLower(origin)] = struct{}{}
			}
		}
	}
}

// WithSendBuffer sets the per-subscriber outbound buffer.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(interval time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.pingInterval = interval
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub constructs a hub. Call Init before serving connections.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		origins:      make(map[string]struct{}),
		sendBuffer:   defaultSendBuffer,
		pingInterval: defaultPingInterval,
		logger:       zap.NewNop(),
		clients:      make(map[*client]struct{}),
		rooms:        make(map[string]map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Init makes the hub accept connections.
func (h *Hub) Init(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.started = true
	return nil
}

// Shutdown disconnects every subscriber and waits for their pumps to exit or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish delivers event to every subscriber of room. It never blocks on a subscriber.
func (h *Hub) Publish(_ context.Context, room, event string, payload any) error {
	room = observability.SanitizeRoom(room)
	if room == "" || strings.TrimSpace(event) == "" {
		return errors.New("realtime: room and event are required")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Message{Event: event, Room: room, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.offer(frame) {
			h.logger.Warn("realtime subscriber dropped",
				zap.String("room", room),
				zap.String("uid", c.uid()))
			h.remove(c)
		}
	}
	return nil
}

// RoomSize reports the number of subscribers currently in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[observability.SanitizeRoom(room)])
}

// ServeHTTP upgrades an authenticated request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	h.mu.RLock()
	accepting := h.started && !h.closed
	h.mu.RUnlock()
	if !accepting {
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "realtime hub unavailable", http.StatusServiceUnavailable))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, identity, h.sendBuffer)
	if !h.register(c) {
		c.close()
		return
	}
	h.pumps.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer h.pumps.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("uid", c.uid()), zap.Error(err))
			}
			return
		}
		h.handleCommand(c, cmd)
	}
}

func (h *Hub) handleCommand(c *client, cmd command) {
	var room string
	switch strings.ToUpper(strings.TrimSpace(cmd.Action)) {
	case ActionJoinAdmin:
		if !c.identity.IsAdmin() {
			c.offer(mustFrame(eventError, "", map[string]string{"message": "admin role required"}))
			return
		}
		room = domain.RoomAdmin
	case ActionJoinUser:
		room = domain.UserRoom(c.identity.UID)
	default:
		c.offer(mustFrame(eventError, "", map[string]string{"message": "unknown action"}))
		return
	}
	room = observability.SanitizeRoom(room)
	h.join(c, room)
	c.offer(mustFrame(eventJoined, room, nil))
	h.logger.Debug("realtime room joined", zap.String("room", room), zap.String("uid", c.uid()))
}

func (h *Hub) writePump(c *client) {
	defer h.pumps.Done()
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) pongWait() time.Duration {
	return h.pingInterval * 2
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.origins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	_, ok := h.origins[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

func mustFrame(event, room string, payload any) []byte {
	data, _ := encodePayload(payload)
	frame, _ := json.Marshal(Message{Event: event, Room: room, Data: data})
	return frame
}

type client struct {
	conn     *websocket.Conn
	identity *auth.Identity
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, identity *auth.Identity, buffer int) *client {
	return &client{
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// offer queues frame without blocking and reports whether it fit.
func (c *client) offer(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

func (c *client) uid() string {
	if c.identity == nil {
		return ""
	}
	return observability.SanitizeUserID(c.identity.UID)
}
