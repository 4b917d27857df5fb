package notify

import (
	"log"
	"sync"
	"time"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// armedCooldown tracks one feature's pending expiry announcement.
type armedCooldown struct {
	deadline int64 // epoch seconds when the window closes
}

// ExpiryNotifier watches armed cooldowns and announces each expiry
// over the broadcaster. It implements quota.ExpiryScheduler and is
// advisory only: gate decisions never wait for it, a missed tick just
// delays the announcement while availability heals on the next read.
type ExpiryNotifier struct {
	mu       sync.Mutex
	armed    map[quota.Feature]armedCooldown
	registry *quota.Registry
	bc       *Broadcaster
	interval time.Duration
	stopChan chan struct{}
	now      func() time.Time
}

// NewExpiryNotifier creates a notifier ticking once per second. Call
// Start to begin watching and Stop on shutdown.
func NewExpiryNotifier(registry *quota.Registry, bc *Broadcaster) *ExpiryNotifier {
	return &ExpiryNotifier{
		armed:    make(map[quota.Feature]armedCooldown),
		registry: registry,
		bc:       bc,
		interval: time.Second,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Arm schedules an expiry announcement for a cooldown that started at
// startEpoch and runs durationSeconds. Re-arming the same feature
// replaces the previous deadline. Nothing is broadcast here, so
// re-arms during a restart restore stay silent.
func (n *ExpiryNotifier) Arm(feature quota.Feature, startEpoch, durationSeconds int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.armed[feature] = armedCooldown{deadline: startEpoch + durationSeconds}
}

// Disarm drops a pending announcement. Called on manual reset and
// whenever a gate heals before the notifier gets to it.
func (n *ExpiryNotifier) Disarm(feature quota.Feature) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.armed, feature)
}

// Start launches the background tick loop
func (n *ExpiryNotifier) Start() {
	go n.loop()
}

// Stop halts the background tick loop
func (n *ExpiryNotifier) Stop() {
	close(n.stopChan)
}

func (n *ExpiryNotifier) loop() {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.fireDue()
		case <-n.stopChan:
			return
		}
	}
}

// fireDue announces every armed cooldown whose window has closed. The
// status read heals the gate, so the event already carries the
// unlocked state.
func (n *ExpiryNotifier) fireDue() {
	now := n.now().Unix()

	n.mu.Lock()
	var due []quota.Feature
	for f, a := range n.armed {
		if now >= a.deadline {
			due = append(due, f)
			delete(n.armed, f)
		}
	}
	n.mu.Unlock()

	for _, f := range due {
		m, ok := n.registry.Manager(f)
		if !ok {
			continue
		}
		st := m.Status()
		if !st.Allowed && st.CooldownStart != 0 {
			// Limits grew under the running window; wait out the rest
			n.Arm(f, st.CooldownStart, st.CooldownSeconds)
			continue
		}
		log.Printf("⏰ [%s] cooldown expired, announcing to %d clients", f, n.bc.ClientCount())
		n.bc.Broadcast(NewCooldownExpiredEvent(st))
	}
}
