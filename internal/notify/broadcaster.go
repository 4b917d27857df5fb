package notify

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

const (
	maxClients    = 100
	channelBuffer = 100
	recentBuffer  = 100
)

// Broadcaster manages SSE client connections and event broadcasting.
// It also keeps a short ring of recent events so late joiners can
// backfill what they missed.
type Broadcaster struct {
	clients  map[string]chan *GateEvent
	mu       sync.RWMutex
	recent   []*GateEvent
	recentMu sync.Mutex
}

// NewBroadcaster creates a new broadcaster instance
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan *GateEvent),
	}
}

// Subscribe adds a new client and returns an event channel
// Returns (clientID, eventChannel) or ("", nil) if at capacity
func (b *Broadcaster) Subscribe() (string, <-chan *GateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.clients) >= maxClients {
		log.Printf("⚠️ SSE broadcaster at capacity (%d clients)", maxClients)
		return "", nil
	}

	clientID := "sse_" + uuid.NewString()
	ch := make(chan *GateEvent, channelBuffer)
	b.clients[clientID] = ch

	log.Printf("📡 SSE client connected: %s (total: %d)", clientID, len(b.clients))
	return clientID, ch
}

// Unsubscribe removes a client from the broadcaster
func (b *Broadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[clientID]; ok {
		close(ch)
		delete(b.clients, clientID)
		log.Printf("📡 SSE client disconnected: %s (total: %d)", clientID, len(b.clients))
	}
}

// Broadcast sends an event to all connected clients (non-blocking)
func (b *Broadcaster) Broadcast(event *GateEvent) {
	b.remember(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for clientID, ch := range b.clients {
		select {
		case ch <- event:
			// Event sent successfully
		default:
			// Channel full, skip this client
			log.Printf("⚠️ SSE channel full for client %s, dropping event", clientID)
		}
	}
}

// Recent returns the buffered events, oldest first
func (b *Broadcaster) Recent() []*GateEvent {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()

	out := make([]*GateEvent, len(b.recent))
	copy(out, b.recent)
	return out
}

// ClientCount returns the current number of connected clients
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CloseAll disconnects every client, used on shutdown
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.clients) == 0 {
		return
	}
	for clientID, ch := range b.clients {
		close(ch)
		delete(b.clients, clientID)
	}
	log.Printf("📡 SSE broadcaster closed all client connections")
}

func (b *Broadcaster) remember(event *GateEvent) {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()

	b.recent = append(b.recent, event)
	if len(b.recent) > recentBuffer {
		b.recent = b.recent[len(b.recent)-recentBuffer:]
	}
}
