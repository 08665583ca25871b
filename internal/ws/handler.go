package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The mobile app and the viewer connect from arbitrary origins
		return true
	},
}

// Handler upgrades authenticated requests to alert streams. It must sit
// behind middleware.StreamAuthMiddleware.
type Handler struct {
	hub *AlertHub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *AlertHub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests on /ws/alerts
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.RequireAuth(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection for user %s from %s", claims.UserID, r.RemoteAddr)
	c := h.hub.Register(claims.UserID, conn)

	go h.readPump(claims.UserID, c)
}

// readPump detects client disconnection and handles pongs. Pings are sent
// by the hub's writer.
func (h *Handler) readPump(userID string, c *client) {
	defer h.hub.Unregister(userID, c.conn)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for user %s: %v", userID, err)
			}
			return
		}
	}
}
