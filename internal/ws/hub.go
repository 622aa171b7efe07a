package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	idleTimeout   = 2 * pongWait
	resolveWait   = 5 * time.Second
	maxReadLength = 1024
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	resolver   *Resolver
	cache      *store.Cache
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	interval   time.Duration
	now        func() time.Time
	mu         sync.RWMutex
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	closed     bool // guarded by hub.mu
	lastActive atomic.Int64

	mu          sync.Mutex
	params      CountdownParams
	frame       FrameFunc
	channels    map[string]bool
	wasUnlocked bool
}

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SubscriptionRequest is sent by clients. Type is "subscribe" or "unsubscribe".
type SubscriptionRequest struct {
	Type string `json:"type"`
	CountdownParams
}

func NewHub(resolver *Resolver, cache *store.Cache, m *metrics.Metrics, logger *zap.SugaredLogger, interval time.Duration, allowedOrigins []string) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		resolver:   resolver,
		cache:      cache,
		logger:     logger,
		metrics:    m,
		interval:   interval,
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// same-origin requests carry no Origin header
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Hub) Run(ctx context.Context) {
	go h.startPoolSubscription(ctx)
	go h.startClientCleanup(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("WebSocket hub shutting down")
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(ctx, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.IncrementStreams(ctx)
			}
			h.logger.Debugw("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(ctx, client)
			h.mu.Unlock()
			h.logger.Debugw("Client unregistered")

		case now := <-ticker.C:
			h.tick(ctx, now.UnixMilli())
		}
	}
}

// dropLocked removes client once; h.mu must be held.
func (h *Hub) dropLocked(ctx context.Context, client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closed = true
	close(client.send)
	if h.metrics != nil {
		h.metrics.DecrementStreams(ctx)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) tick(ctx context.Context, nowMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		for _, msg := range client.frames(nowMs) {
			if !h.deliverLocked(ctx, client, msg) {
				break
			}
		}
	}
}

// deliverLocked queues msg without blocking; a slow client is dropped.
func (h *Hub) deliverLocked(ctx context.Context, client *Client, msg []byte) bool {
	select {
	case client.send <- msg:
		return true
	default:
		h.dropLocked(ctx, client)
		return false
	}
}

func (h *Hub) startPoolSubscription(ctx context.Context) {
	catalog := h.resolver.staking.Pools().Catalog()
	channels := make([]string, 0, catalog.Len())
	for _, p := range catalog.All() {
		channels = append(channels, store.PoolChannel(p.ID))
	}
	if len(channels) == 0 {
		return
	}

	sub := h.cache.Subscribe(ctx, channels...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcastPoolUpdate(ctx, msg)
		}
	}
}

func (h *Hub) broadcastPoolUpdate(ctx context.Context, msg *store.Message) {
	data, err := json.Marshal(Message{
		Type:      "pool_update",
		Topic:     msg.Channel,
		Data:      json.RawMessage(msg.Payload),
		Timestamp: h.now().Unix(),
	})
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.isSubscribed(msg.Channel) {
			h.deliverLocked(ctx, client, data)
		}
	}
}

func (h *Hub) startClientCleanup(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupInactiveClients(ctx)
		}
	}
}

func (h *Hub) cleanupInactiveClients(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-idleTimeout).UnixNano()
	for client := range h.clients {
		if client.lastActive.Load() < cutoff {
			h.dropLocked(ctx, client)
			h.logger.Debugw("Cleaned up inactive client")
		}
	}
}

// HandleWebSocket upgrades the connection. Query parameters, when present,
// subscribe the client immediately.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: make(map[string]bool),
	}
	client.touch()

	if params, err := ParseCountdownParams(r.URL.Query()); err == nil {
		client.subscribe(params)
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) touch() {
	c.lastActive.Store(c.hub.now().UnixNano())
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadLength)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorw("WebSocket error", "error", err)
			}
			break
		}

		c.touch()
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var req SubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.hub.logger.Warnw("Invalid subscription message", "error", err)
		c.reply("error", map[string]string{"message": "invalid json"})
		return
	}

	switch req.Type {
	case "subscribe":
		if err := c.subscribe(req.CountdownParams); err != nil {
			c.reply("error", map[string]string{"message": err.Error()})
			return
		}
		c.hub.logger.Debugw("Client subscribed", "pool", req.PoolID, "address", req.Address)
		c.reply("subscribed", req.CountdownParams)

	case "unsubscribe":
		c.mu.Lock()
		c.frame = nil
		c.channels = make(map[string]bool)
		c.mu.Unlock()
		c.reply("unsubscribed", nil)

	default:
		c.reply("error", map[string]string{"message": "unknown message type"})
	}
}

func (c *Client) subscribe(params CountdownParams) error {
	if params.raw() && params.StakingPeriodSec == 0 && params.UnlockWindowSec == 0 && params.LastOperationMs == 0 {
		return ErrMissingTarget
	}
	if !params.raw() && params.Address == "" {
		return ErrMissingTarget
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveWait)
	defer cancel()
	frame, channels, err := c.hub.resolver.Resolve(ctx, params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
	c.frame = frame
	c.wasUnlocked = false
	c.channels = make(map[string]bool, len(channels))
	for _, ch := range channels {
		c.channels[ch] = true
	}
	return nil
}

// reply queues a control message; it never blocks the read loop.
func (c *Client) reply(kind string, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw = b
	}
	msg, err := json.Marshal(Message{Type: kind, Data: raw, Timestamp: c.hub.now().Unix()})
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// frames renders the messages due at nowMs: a countdown and, on the locked to
// unlocked transition, an unlocked notice.
func (c *Client) frames(nowMs int64) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil
	}

	f := c.frame(nowMs)
	data, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	out := make([][]byte, 0, 2)
	if msg, err := json.Marshal(Message{Type: "countdown", Data: data, Timestamp: nowMs / 1000}); err == nil {
		out = append(out, msg)
	}
	if f.IsUnlocked && !c.wasUnlocked {
		if msg, err := json.Marshal(Message{Type: "unlocked", Data: data, Timestamp: nowMs / 1000}); err == nil {
			out = append(out, msg)
		}
	}
	c.wasUnlocked = f.IsUnlocked
	return out
}

func (c *Client) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}
