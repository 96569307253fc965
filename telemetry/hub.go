// Package telemetry streams per-tick tactical reports to debug viewers over
// a websocket. It is read-only: nothing a viewer sends affects the AI.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
	"github.com/nstehr/vimy/vimy-tactics/tactics"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many reports a viewer may fall behind before it is
	// disconnected.
	sendBuffer = 16
)

// Report is one player's tactical picture at a tick.
type Report struct {
	Player string              `json:"player"`
	Tick   int                 `json:"tick"`
	Stats  scheduler.Stats     `json:"stats"`
	Group  tactics.GroupStatus `json:"group"`
	Rally  *model.Vec2         `json:"rally,omitempty"`
	Orders []tactics.Order     `json:"orders,omitempty"`
	Army   *tactics.Group      `json:"army,omitempty"`
	Field  *influence.Grid     `json:"field,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub fans reports out to every connected viewer. New viewers receive the
// latest report straight away. Each viewer has its own writer goroutine, so
// Publish never waits on the network.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection until the viewer
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("telemetry upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := newClient(conn)

	// Queue the latest report under the hub lock so a concurrent Publish
	// cannot overtake it.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()
	go h.writePump(c)
	slog.Info("telemetry viewer connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
	slog.Info("telemetry viewer disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("telemetry write failed", "error", err)
				h.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Publish queues r for every viewer. A viewer whose queue is full is
// disconnected.
func (h *Hub) Publish(r Report) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("telemetry encode failed", "tick", r.Tick, "error", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		slog.Warn("telemetry viewer too slow, dropped", "tick", r.Tick)
		h.drop(c)
	}
}

// Clients is the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		c.close()
	}
	return nil
}
