// Package ws fans engine events and health alerts out to websocket and
// server-sent-event subscribers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/engine"
)

const (
	TopicEvents = "events"
	TopicAlerts = "alerts"

	topicUserPrefix  = "user:"
	topicEventPrefix = "events:"

	sendBuffer    = 256
	idleTimeout   = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// ConnectionMetrics tracks open subscriber connections.
type ConnectionMetrics interface {
	IncrementConnections(ctx context.Context)
	DecrementConnections(ctx context.Context)
}

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger
	metrics    ConnectionMetrics
	mu         sync.RWMutex
}

// Client is one subscriber. conn is nil for server-sent-event clients.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	topics     map[string]bool
	lastActive time.Time
	mu         sync.Mutex
}

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type SubscriptionRequest struct {
	Type    string   `json:"type"`
	Topics  []string `json:"topics"`
	Address string   `json:"address,omitempty"`
}

// PositionUnsafe is broadcast on the alerts topic when a position falls
// below the minimum health factor.
type PositionUnsafe struct {
	User               string    `json:"user"`
	HealthFactor       string    `json:"healthFactor"`
	DebtMinted         string    `json:"debtMinted"`
	CollateralValueUSD string    `json:"collateralValueUsd"`
	DetectedAt         time.Time `json:"detectedAt"`
}

type outbound struct {
	topics  []string
	payload []byte
}

func NewHub(allowedOrigins []string, logger *zap.SugaredLogger, metrics ConnectionMetrics) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Same-origin requests carry no Origin header.
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("Event hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				h.drop(ctx, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.IncrementConnections(ctx)
			h.logger.Debugw("Client registered", "topics", client.topicList())

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.drop(ctx, client)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(ctx, msg)

		case <-cleanup.C:
			h.cleanupInactiveClients(ctx)
		}
	}
}

// drop removes a client; callers hold h.mu.
func (h *Hub) drop(ctx context.Context, client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.DecrementConnections(ctx)
}

func (h *Hub) deliver(ctx context.Context, msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.subscribedToAny(msg.topics) {
			continue
		}
		select {
		case client.send <- msg.payload:
		default:
			// Client is slow or disconnected
			h.drop(ctx, client)
		}
	}
}

func (h *Hub) cleanupInactiveClients(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for client := range h.clients {
		if client.conn != nil && client.idleSince(cutoff) {
			h.drop(ctx, client)
			h.logger.Debugw("Cleaned up inactive client")
		}
	}
}

// ClientCount returns the number of registered subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements engine.EventSink. Each event goes to the events
// topic, its typed topic and the topics of every address it touches.
func (h *Hub) Publish(ctx context.Context, events []engine.Event) error {
	for _, ev := range events {
		topics := []string{TopicEvents, topicEventPrefix + string(ev.Type), UserTopic(ev.User)}
		if ev.Counterparty != (common.Address{}) && ev.Counterparty != ev.User {
			topics = append(topics, UserTopic(ev.Counterparty))
		}
		if err := h.enqueue(ctx, topicEventPrefix+string(ev.Type), topics, ev.Record(), ev.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// PositionUnsafe broadcasts an alert for an undercollateralized position.
func (h *Hub) PositionUnsafe(ctx context.Context, pos engine.Position, at time.Time) error {
	alert := PositionUnsafe{
		User:               pos.User.Hex(),
		HealthFactor:       calc.FromWad(pos.HealthFactor, 18).String(),
		DebtMinted:         calc.FromWad(pos.DebtMinted, 18).String(),
		CollateralValueUSD: calc.FromWad(pos.CollateralValueUSD, 18).String(),
		DetectedAt:         at,
	}
	return h.enqueue(ctx, TopicAlerts, []string{TopicAlerts, UserTopic(pos.User)}, alert, at)
}

func (h *Hub) enqueue(ctx context.Context, topic string, topics []string, data any, at time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Message{
		Type:      "update",
		Topic:     topic,
		Data:      raw,
		Timestamp: at.Unix(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- outbound{topics: topics, payload: payload}:
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.logger.Warnw("Event hub backlog full, dropping message", "topic", topic)
	}
	return nil
}

// UserTopic is the topic carrying everything that touches addr.
func UserTopic(addr common.Address) string {
	return topicUserPrefix + strings.ToLower(addr.Hex())
}

func (h *Hub) newClient(conn *websocket.Conn, r *http.Request) *Client {
	c := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		topics:     make(map[string]bool),
		lastActive: time.Now(),
	}

	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = strings.Split(raw, ",")
	}
	address := r.URL.Query().Get("address")
	if len(topics) == 0 && address == "" {
		topics = []string{TopicEvents, TopicAlerts}
	}
	c.subscribe(topics, address)
	return c
}

// attach registers c unless the hub has stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleWebSocket upgrades the request and streams subscribed topics.
// Initial topics come from the topics and address query parameters and
// may be changed with subscribe and unsubscribe messages.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	client := h.newClient(conn, r)
	if !h.attach(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// HandleSSE streams subscribed topics as server-sent events until the
// request is cancelled.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.newClient(nil, r)
	if !h.attach(client) {
		http.Error(w, "event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer h.detach(client)

	writeSSE(w, "connected", []byte("{}"))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debugw("SSE client disconnected")
			return
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", []byte("{}"))
			flusher.Flush()
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			writeSSE(w, "update", msg)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	_, _ = w.Write([]byte("event: " + event + "\ndata: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorw("WebSocket error", "error", err)
			}
			return
		}
		c.touch()
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var sub SubscriptionRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		c.hub.logger.Warnw("Invalid subscription message", "error", err)
		return
	}

	switch sub.Type {
	case "subscribe":
		c.subscribe(sub.Topics, sub.Address)
		c.hub.logger.Debugw("Client subscribed to topics", "topics", sub.Topics, "address", sub.Address)
	case "unsubscribe":
		c.mu.Lock()
		for _, topic := range sub.Topics {
			delete(c.topics, strings.TrimSpace(topic))
		}
		if common.IsHexAddress(sub.Address) {
			delete(c.topics, UserTopic(common.HexToAddress(sub.Address)))
		}
		c.mu.Unlock()
	}
}

func (c *Client) subscribe(topics []string, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			c.topics[topic] = true
		}
	}
	if common.IsHexAddress(address) {
		c.topics[UserTopic(common.HexToAddress(address))] = true
	}
}

func (c *Client) subscribedToAny(topics []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		if c.topics[topic] {
			return true
		}
	}
	return false
}

func (c *Client) topicList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive.Before(cutoff)
}
