// Package feed streams committed transaction logs to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nft_market/internal/event"
	"nft_market/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

// Channel names. Every log type is also a channel.
const (
	ChannelAll      = "*"
	ChannelReceipts = "receipts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame pushed to subscribers.
type Message struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq,omitempty"`
	TxHash  string `json:"tx,omitempty"`
	Payload any    `json:"payload"`
}

// subscribeMsg is the JSON message a client sends to change its channels.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub fans committed logs out to connected websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	metrics    *infra.Metrics
	logger     *slog.Logger
}

// NewHub creates a hub. It delivers nothing until Run is started.
func NewHub(metrics *infra.Metrics, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger.With(slog.String("module", "feed")),
	}
}

// Run handles client registration and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
				h.metrics.DecrementSubscribers()
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.metrics.IncrementSubscribers()
			h.logger.Info("feed: client connected",
				slog.String("client", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.metrics.DecrementSubscribers()
			}
			h.mu.Unlock()
			h.logger.Info("feed: client disconnected",
				slog.String("client", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						h.logger.Warn("feed: dropping message for slow client", slog.String("client", c.id))
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues the receipt and each of its logs. It never blocks the
// caller; messages are dropped when the hub falls behind.
func (h *Hub) Publish(r *event.Receipt) {
	h.enqueue(ChannelReceipts, Message{Type: ChannelReceipts, Seq: r.Seq, TxHash: r.Hash.Hex(), Payload: r})
	if !r.Succeeded() {
		return
	}
	for _, l := range r.Logs {
		t := string(l.GetType())
		h.enqueue(t, Message{Type: t, Seq: r.Seq, TxHash: r.Hash.Hex(), Payload: l})
	}
}

func (h *Hub) enqueue(channel string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("feed: marshal failed", slog.String("channel", channel), slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- broadcastMsg{channel: channel, data: data}:
	default:
		h.logger.Warn("feed: broadcast queue full", slog.String("channel", channel))
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("feed: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := h.newClient(conn, r.URL.Query()["channel"])

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// newClient builds a client subscribed to channels (all when empty) with the
// welcome frame already queued. Once registered, send may be closed by Run.
func (h *Hub) newClient(conn *websocket.Conn, channels []string) *client {
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{ChannelAll: true},
	}
	for _, ch := range channels {
		if len(c.subs) == 1 && c.subs[ChannelAll] {
			delete(c.subs, ChannelAll)
		}
		c.subs[ch] = true
	}
	c.sendWelcome()
	return c
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendWelcome tells the client its id before any log arrives. It must run
// before the client is registered.
func (c *client) sendWelcome() {
	msg, err := json.Marshal(Message{
		Type:    "welcome",
		Payload: map[string]any{"client_id": c.id, "channels": c.channels()},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[ChannelAll] || c.subs[channel]
}

func (c *client) writePump() {
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
				// The hub closed the channel.
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
