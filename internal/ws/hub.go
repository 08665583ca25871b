package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// client is one connection with its outgoing queue. Only writePump writes
// to conn.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// enqueue queues msg without blocking and reports whether it was accepted
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// AlertHub manages WebSocket connections for real-time alert streaming,
// keyed by the owning user id
type AlertHub struct {
	clients map[string]map[*websocket.Conn]*client
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// NewAlertHub creates a new alert hub
func NewAlertHub() *AlertHub {
	return &AlertHub{
		clients: make(map[string]map[*websocket.Conn]*client),
	}
}

// Register adds a connection for a user and starts its writer
func (h *AlertHub) Register(userID string, conn *websocket.Conn) *client {
	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]*client)
	}
	h.clients[userID][conn] = c
	n := len(h.clients[userID])
	h.mu.Unlock()

	go h.writePump(c)
	log.Printf("[WS] Client registered for user %s (total: %d)", userID, n)
	return c
}

// Unregister removes a connection for a user and closes it
func (h *AlertHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	conns, ok := h.clients[userID]
	c, found := conns[conn]
	if !ok || !found {
		h.mu.Unlock()
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	c.close()
	log.Printf("[WS] Client unregistered for user %s", userID)
}

// writePump drains a client's queue and keeps it alive with pings. A client
// that cannot keep up loses messages instead of holding up the publisher.
func (h *AlertHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Unregister(c.userID, c.conn)
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[WS] Error sending to client: %v", err)
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

// HasClients returns true if a user has any open connection
func (h *AlertHub) HasClients(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[userID]
	return ok && len(conns) > 0
}

// ClientCount returns the total number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// BroadcastToUser queues a message for every connection of a user. It never
// blocks; a connection whose queue is full misses the message.
func (h *AlertHub) BroadcastToUser(userID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients[userID] {
		if !c.enqueue(message) {
			if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Printf("[WS] Slow client for user %s, %d messages dropped so far", userID, n)
			}
		}
	}
}

// Dropped returns how many messages were skipped for slow clients
func (h *AlertHub) Dropped() uint64 {
	return h.dropped.Load()
}

// PublishAlert pushes a stored alert to its owner
func (h *AlertHub) PublishAlert(userID string, msg *AlertMessage) {
	h.publish(userID, msg)
}

// PublishDecisions pushes one frame's decisions to the monitor owner
func (h *AlertHub) PublishDecisions(userID string, msg *DecisionMessage) {
	h.publish(userID, msg)
}

func (h *AlertHub) publish(userID string, msg any) {
	if !h.HasClients(userID) {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}
	h.BroadcastToUser(userID, data)
}

// Close drops every connection
func (h *AlertHub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*websocket.Conn]*client)
	h.mu.Unlock()

	for _, conns := range all {
		for _, c := range conns {
			c.close()
		}
	}
}
