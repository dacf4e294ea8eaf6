// Package ws pushes live alert events to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// client is one WebSocket connection. An empty hunts set means the client
// receives alerts for every hunt.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	mu    sync.RWMutex
	hunts map[string]bool
}

// subscribeMsg is what a client sends to narrow or widen its alert feed:
// {"action":"subscribe","hunts":["h1"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Hunts  []string `json:"hunts"`
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub bridges the alert channel of the signal bus to connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan alertMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

type alertMsg struct {
	huntID string
	data   []byte
}

// NewHub creates a Hub.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan alertMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run subscribes to alerts and fans them out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	alerts, err := h.bus.Subscribe(ctx, domain.ChannelAlerts)
	if err != nil {
		return err
	}
	go h.forward(ctx, alerts)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg.huntID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping alert for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward decodes each alert far enough to route it by hunt and queues it
// for broadcast.
func (h *Hub) forward(ctx context.Context, alerts <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-alerts:
			if !ok {
				h.logger.Warn("alert subscription closed")
				return
			}
			var ev domain.AlertEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				h.logger.Warn("undecodable alert dropped", slog.String("error", err.Error()))
				continue
			}
			frame, err := json.Marshal(map[string]any{"type": "alert", "payload": json.RawMessage(data)})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- alertMsg{huntID: ev.HuntID, data: frame}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		hunts: make(map[string]bool),
	}
	for _, id := range r.URL.Query()["hunt"] {
		c.hunts[id] = true
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(huntID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hunts) == 0 || c.hunts[huntID]
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, id := range msg.Hunts {
			c.hunts[id] = true
		}
	case "unsubscribe":
		for _, id := range msg.Hunts {
			delete(c.hunts, id)
		}
	}
}

// sendHello lets a dashboard mark the connection healthy before any alert
// arrives.
func (c *client) sendHello() {
	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"uptime_seconds": max(0, int64(time.Since(c.hub.startedAt).Seconds())),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
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
