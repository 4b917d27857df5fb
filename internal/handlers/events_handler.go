package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JillVernus/feature-gate/internal/notify"
)

// heartbeatInterval keeps idle SSE connections alive through proxies
// that drop quiet streams.
const heartbeatInterval = 30 * time.Second

// EventsHandler streams gate events to clients over SSE
type EventsHandler struct {
	broadcaster *notify.Broadcaster
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(broadcaster *notify.Broadcaster) *EventsHandler {
	return &EventsHandler{broadcaster: broadcaster}
}

// Stream serves the live event feed. Pass ?replay=1 to receive the
// buffered recent events before the live ones.
// GET /api/events
func (h *EventsHandler) Stream(c *gin.Context) {
	clientID, events := h.broadcaster.Subscribe()
	if events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many event stream clients"})
		return
	}
	defer h.broadcaster.Unsubscribe(clientID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Status(200)

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("⚠️ ResponseWriter does not support flushing, closing event stream")
		return
	}

	writeEvent := func(ev *notify.GateEvent) bool {
		msg, err := ev.ToSSE()
		if err != nil {
			log.Printf("⚠️ Failed to encode SSE event: %v", err)
			return true
		}
		if _, err := w.Write([]byte(msg)); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(notify.NewConnectedEvent(clientID)) {
		return
	}

	if c.Query("replay") == "1" {
		for _, ev := range h.broadcaster.Recent() {
			if !writeEvent(ev) {
				return
			}
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if !writeEvent(ev) {
				return
			}
		case <-heartbeat.C:
			if !writeEvent(notify.NewHeartbeatEvent()) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Recent returns the buffered events for polling clients
// GET /api/events/recent
func (h *EventsHandler) Recent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clients": h.broadcaster.ClientCount(),
		"events":  h.broadcaster.Recent(),
	})
}
