// Package notify pushes gate changes to connected clients over SSE.
// The broadcaster fans events out to subscribers and the expiry
// notifier announces cooldown ends so UIs can unlock a feature the
// moment its window closes instead of polling for it.
package notify

import (
	"encoding/json"
	"time"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// Event type constants
const (
	EventConnected       = "connected"
	EventHeartbeat       = "heartbeat"
	EventUsageRecorded   = "gate:usage_recorded"
	EventCooldownStarted = "gate:cooldown_started"
	EventCooldownExpired = "gate:cooldown_expired"
	EventGateReset       = "gate:reset"
	EventLimitsUpdated   = "limits:updated"
)

// GateEvent represents an SSE event to be sent to clients
type GateEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectedPayload contains data for connected events
type ConnectedPayload struct {
	ClientID string `json:"clientId"`
}

// LimitsUpdatedPayload contains data for limits:updated events. It
// carries the refreshed gate snapshots so clients re-render every
// feature in one pass instead of fetching them individually.
type LimitsUpdatedPayload struct {
	ActiveTier string             `json:"activeTier"`
	Statuses   []quota.GateStatus `json:"statuses"`
}

// NewConnectedEvent creates the first event a new SSE client receives
func NewConnectedEvent(clientID string) *GateEvent {
	return &GateEvent{
		Type:      EventConnected,
		Data:      ConnectedPayload{ClientID: clientID},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event
func NewHeartbeatEvent() *GateEvent {
	return &GateEvent{
		Type:      EventHeartbeat,
		Data:      nil,
		Timestamp: time.Now(),
	}
}

// NewUsageRecordedEvent creates an event for a counted use. The status
// is the gate snapshot taken after the increment.
func NewUsageRecordedEvent(status quota.GateStatus) *GateEvent {
	return &GateEvent{
		Type:      EventUsageRecorded,
		Data:      status,
		Timestamp: time.Now(),
	}
}

// NewCooldownStartedEvent creates an event for a cooldown that just
// started, whether from the use that hit the limit or from popup open.
func NewCooldownStartedEvent(status quota.GateStatus) *GateEvent {
	return &GateEvent{
		Type:      EventCooldownStarted,
		Data:      status,
		Timestamp: time.Now(),
	}
}

// NewCooldownExpiredEvent creates an event for a cooldown that ran its
// full window. The status carries the already reset gate.
func NewCooldownExpiredEvent(status quota.GateStatus) *GateEvent {
	return &GateEvent{
		Type:      EventCooldownExpired,
		Data:      status,
		Timestamp: time.Now(),
	}
}

// NewGateResetEvent creates an event for a manual reset
func NewGateResetEvent(status quota.GateStatus) *GateEvent {
	return &GateEvent{
		Type:      EventGateReset,
		Data:      status,
		Timestamp: time.Now(),
	}
}

// NewLimitsUpdatedEvent creates an event for a configuration change
func NewLimitsUpdatedEvent(activeTier string, statuses []quota.GateStatus) *GateEvent {
	return &GateEvent{
		Type: EventLimitsUpdated,
		Data: LimitsUpdatedPayload{
			ActiveTier: activeTier,
			Statuses:   statuses,
		},
		Timestamp: time.Now(),
	}
}

// ToSSE formats the event as an SSE message
func (e *GateEvent) ToSSE() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n", nil
}
