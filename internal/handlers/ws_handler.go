package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/JillVernus/feature-gate/internal/notify"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins already passed the auth middleware; the key travels in
	// the query string because browser WebSocket clients cannot set
	// headers.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// WSHandler streams gate events over a WebSocket, for clients that
// cannot hold an SSE connection.
type WSHandler struct {
	broadcaster *notify.Broadcaster
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(broadcaster *notify.Broadcaster) *WSHandler {
	return &WSHandler{broadcaster: broadcaster}
}

// Stream upgrades the connection and forwards gate events as JSON
// GET /api/ws
func (h *WSHandler) Stream(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID, events := h.broadcaster.Subscribe()
	if events == nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many clients")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		return
	}
	defer h.broadcaster.Unsubscribe(clientID)

	// Reader goroutine: clients send nothing meaningful, but reading
	// is what surfaces the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(notify.NewConnectedEvent(clientID)); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
