// Package telemetry implements the telemetry fan-out (C9): WebSocket
// publication of performance metrics, risk snapshots, and alerts to any
// number of operator dashboards, plus a plain HTTP health route.
//
// The WebSocket plumbing (Hub/Client, ping/pong keepalive, origin
// checking) is the same pattern the dashboard server used for its single
// broadcast topic; here it is parameterized per topic so /metrics, /risk,
// and /alerts each get their own client set and backpressure behavior.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Hub fans one topic's messages out to every connected WebSocket client.
// A message that a client's send buffer can't absorb is dropped for that
// client and the client is disconnected — slow consumers never block
// publication for everyone else.
type Hub struct {
	topic      string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	dropped    atomic.Uint64
	logger     *slog.Logger
}

// Client is one connected WebSocket subscriber to a Hub's topic.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(topic string, logger *slog.Logger) *Hub {
	return &Hub{
		topic:      topic,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger.With("component", "telemetry-hub", "topic", topic),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected", "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "count", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.dropped.Add(1)
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish marshals v and broadcasts it. A full broadcast queue (the hub's
// own goroutine falling behind, not a specific client) counts as a drop
// and is logged but otherwise silently absorbed — telemetry is best
// effort, never a backpressure source for the engine.
func (h *Hub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal telemetry payload", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping publish")
	}
}

// Dropped returns the number of messages this hub has dropped, either at
// the broadcast queue or at an individual client's send buffer.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) register_(c *Client)   { h.register <- c }
func (h *Hub) unregister_(c *Client) { h.unregister <- c }

// NewClient registers conn with hub and starts its read/write pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 64)}
	hub.register_(client)

	go client.writePump()
	go client.readPump()

	return client
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

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister_(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		// Telemetry routes are read-only; client messages are ignored.
	}
}

// Send enqueues a raw backlog message directly to this client, used to
// replay recent alerts on connect. Never blocks.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}
