// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package broadcast fans status messages out to connected UI surfaces
// over websockets. Delivery is best-effort: a surface that cannot keep
// up or whose connection breaks is dropped, never waited on.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"grimm.is/hearth/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Surfaces connect from extension pages and local panels; the hub
	// only listens on loopback so origin checks add nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// surface is one connected observer (popup, blocked page, settings panel).
// The send channel is never closed; teardown is signalled through done so
// concurrent broadcasters can never send on a closed channel.
type surface struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func (s *surface) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Hub tracks connected surfaces and broadcasts JSON messages to them.
type Hub struct {
	mu       sync.RWMutex
	surfaces map[string]*surface
	logger   *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Hub{
		surfaces: make(map[string]*surface),
		logger:   logger.WithComponent("broadcast"),
	}
}

// ServeHTTP upgrades the connection and registers the surface.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	s := &surface{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.surfaces[s.id] = s
	count := len(h.surfaces)
	h.mu.Unlock()
	h.logger.Debug("Surface connected", "surface", s.id, "connected", count)

	go h.writePump(s)
	go h.readPump(s)
}

// Broadcast sends v as JSON to every connected surface. A surface whose
// buffer is full is dropped on the spot.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode broadcast message")
		return
	}

	h.mu.RLock()
	targets := make([]*surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.send <- data:
		default:
			h.drop(s, "send buffer full")
		}
	}
}

// Count returns the number of connected surfaces.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.surfaces)
}

// Close disconnects all surfaces.
func (h *Hub) Close() {
	h.mu.Lock()
	surfaces := h.surfaces
	h.surfaces = make(map[string]*surface)
	h.mu.Unlock()

	for _, s := range surfaces {
		s.signalDone()
	}
}

func (h *Hub) drop(s *surface, reason string) {
	h.mu.Lock()
	_, ok := h.surfaces[s.id]
	delete(h.surfaces, s.id)
	h.mu.Unlock()

	s.signalDone()
	if ok {
		h.logger.Debug("Surface dropped", "surface", s.id, "reason", reason)
	}
}

// writePump drains the surface's send channel onto the wire and keeps
// the connection alive with pings.
func (h *Hub) writePump(s *surface) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(s, "write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(s, "ping failed")
				return
			}
		}
	}
}

// readPump discards inbound frames; surfaces are listen-only. It exists
// to notice closed connections and process control frames.
func (h *Hub) readPump(s *surface) {
	s.conn.SetReadLimit(512)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			h.drop(s, "connection closed")
			return
		}
	}
}
