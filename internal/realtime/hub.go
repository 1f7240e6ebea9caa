package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OrderEvent describes one payment state transition pushed to dashboards.
type OrderEvent struct {
	OrderKey      string    `json:"order_key"`
	Previous      string    `json:"previous"`
	State         string    `json:"state"`
	RemoteOrderID string    `json:"remote_order_id,omitempty"`
	At            time.Time `json:"at"`
}

// Hub fans payment events out to connected WebSocket clients. Publishing is
// non-blocking; events are dropped when the buffer is full rather than
// stalling a request handler.
type Hub struct {
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan []byte

	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}
	logf        func(format string, args ...any)
}

// NewHub constructs a Hub.
func NewHub(logf func(format string, args ...any)) *Hub {
	if logf == nil {
		logf = log.Printf
	}
	return &Hub{
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn, 64),
		events:      make(chan []byte, 64),
		connections: make(map[*websocket.Conn]struct{}),
		logf:        logf,
	}
}

// Register attaches a client connection to the hub and starts its read pump,
// so a disconnect is noticed without waiting for the next broadcast write.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
	go h.readLoop(conn)
}

// Unregister detaches and closes a client connection. Never blocks: when the
// run loop is gone the connection is just closed.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	default:
		conn.Close()
	}
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Unregister(conn)
			return
		}
	}
}

// PublishOrderEvent queues an event for broadcast.
func (h *Hub) PublishOrderEvent(ev OrderEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logf("realtime: marshal event for order %s: %v", ev.OrderKey, err)
		return
	}
	select {
	case h.events <- data:
	default:
		h.logf("realtime: event buffer full, dropping event for order %s", ev.OrderKey)
	}
}

// Run processes register/unregister/broadcast events until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.events:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.Close()
		delete(h.connections, conn)
	}
}
