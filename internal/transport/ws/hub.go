// Package ws pushes realtime application events to websocket clients. The
// hub fans broadcast messages out to connections; clients opt into the
// applications or countries they care about.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crediflow/internal/platform/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 16
)

// clientCommand is what a connected client may send: subscribe to or
// unsubscribe from one application's events, or from a whole country's.
type clientCommand struct {
	Type          string `json:"type"`
	ApplicationID string `json:"applicationId,omitempty"`
	CountryCode   string `json:"countryCode,omitempty"`
}

// frame is the shape pushed to clients.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu           sync.Mutex
	applications map[string]struct{}
	countries    map[string]struct{}
}

func (c *client) subscribeApplication(id string) {
	c.mu.Lock()
	c.applications[id] = struct{}{}
	c.mu.Unlock()
}

func (c *client) unsubscribeApplication(id string) {
	c.mu.Lock()
	delete(c.applications, id)
	c.mu.Unlock()
}

func (c *client) subscribeCountry(code string) {
	c.mu.Lock()
	c.countries[code] = struct{}{}
	c.mu.Unlock()
}

func (c *client) unsubscribeCountry(code string) {
	c.mu.Lock()
	delete(c.countries, code)
	c.mu.Unlock()
}

func (c *client) wants(msg broadcast.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Target {
	case broadcast.TargetApplication:
		_, ok := c.applications[msg.ID]
		return ok
	case broadcast.TargetCountry:
		_, ok := c.countries[msg.ID]
		return ok
	default:
		return true
	}
}

// Hub owns the set of connected clients and relays broadcast messages to
// them. One hub per process; the broadcaster carries events across processes.
type Hub struct {
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(broadcaster broadcast.Broadcaster, logger *slog.Logger) *Hub {
	return &Hub{
		broadcaster: broadcaster,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from a separately served frontend.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Run relays broadcast messages to connected clients until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.broadcaster.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case msg, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg broadcast.Message) {
	payload, err := json.Marshal(frame{Event: msg.Event, Data: msg.Data})
	if err != nil {
		h.logger.Error("marshal websocket frame", "event", msg.Event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Slow client: drop it rather than stall the hub.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// HandleWS upgrades the connection and serves it until either side closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		applications: make(map[string]struct{}),
		countries:    make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			if cmd.ApplicationID != "" {
				c.subscribeApplication(cmd.ApplicationID)
			}
		case "unsubscribe":
			if cmd.ApplicationID != "" {
				c.unsubscribeApplication(cmd.ApplicationID)
			}
		case "subscribe:country":
			if cmd.CountryCode != "" {
				c.subscribeCountry(cmd.CountryCode)
			}
		case "unsubscribe:country":
			if cmd.CountryCode != "" {
				c.unsubscribeCountry(cmd.CountryCode)
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
