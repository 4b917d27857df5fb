package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// staticLimits is a LimitsProvider backed by a plain map.
type staticLimits struct {
	mu     sync.Mutex
	limits map[quota.Feature]quota.Limits
	order  []quota.Feature
}

func newStaticLimits(limits map[quota.Feature]quota.Limits, order ...quota.Feature) *staticLimits {
	return &staticLimits{limits: limits, order: order}
}

func (p *staticLimits) FeatureLimits(f quota.Feature) quota.Limits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limits[f]
}

func (p *staticLimits) Features() []quota.Feature {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]quota.Feature(nil), p.order...)
}

func TestNotifierAnnouncesExpiry(t *testing.T) {
	store := quota.NewMemoryStore()
	expiredStart := time.Now().Unix() - 7200
	if err := store.Save(&quota.State{Feature: quota.FeatureConversation, UsageCount: 1, CooldownStart: expiredStart}); err != nil {
		t.Fatalf("Failed to seed state: %v", err)
	}

	provider := newStaticLimits(map[quota.Feature]quota.Limits{
		quota.FeatureConversation: {Limit: 1, CooldownSeconds: 3600},
	}, quota.FeatureConversation)

	reg := quota.NewRegistry(store, provider)
	bc := NewBroadcaster()
	n := NewExpiryNotifier(reg, bc)
	n.interval = 10 * time.Millisecond

	reg.SetScheduler(n)
	if err := reg.Preload(); err != nil {
		t.Fatalf("Failed to preload registry: %v", err)
	}

	// The restore re-arm must not announce anything by itself
	if len(bc.Recent()) != 0 {
		t.Fatalf("Expected no events after preload, got %d", len(bc.Recent()))
	}

	_, ch := bc.Subscribe()
	n.Start()
	defer n.Stop()

	select {
	case ev := <-ch:
		if ev.Type != EventCooldownExpired {
			t.Fatalf("Expected %s event, got %s", EventCooldownExpired, ev.Type)
		}
		status := ev.Data.(quota.GateStatus)
		if !status.Allowed {
			t.Error("Expected expired event to carry an unlocked gate")
		}
		if status.UsageCount != 0 {
			t.Errorf("Expected usage reset to 0, got %d", status.UsageCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for expiry announcement")
	}

	m, _ := reg.Manager(quota.FeatureConversation)
	if !m.CanPerform() {
		t.Error("Expected feature to be available after expiry")
	}

	n.mu.Lock()
	_, stillArmed := n.armed[quota.FeatureConversation]
	n.mu.Unlock()
	if stillArmed {
		t.Error("Expected feature to be disarmed after firing")
	}
}

func TestNotifierDisarmsOnManualReset(t *testing.T) {
	provider := newStaticLimits(map[quota.Feature]quota.Limits{
		quota.FeatureRefresh: {Limit: 1, CooldownSeconds: 3600},
	}, quota.FeatureRefresh)

	reg := quota.NewRegistry(quota.NewMemoryStore(), provider)
	bc := NewBroadcaster()
	n := NewExpiryNotifier(reg, bc)
	reg.SetScheduler(n)

	m, _ := reg.Manager(quota.FeatureRefresh)
	m.RecordUsage()

	n.mu.Lock()
	_, armed := n.armed[quota.FeatureRefresh]
	n.mu.Unlock()
	if !armed {
		t.Fatal("Expected cooldown to be armed after hitting the limit")
	}

	m.ResetUsage()

	n.mu.Lock()
	_, armed = n.armed[quota.FeatureRefresh]
	n.mu.Unlock()
	if armed {
		t.Error("Expected manual reset to disarm the notifier")
	}
	if len(bc.Recent()) != 0 {
		t.Errorf("Expected no broadcasts from arm/disarm, got %d", len(bc.Recent()))
	}
}

func TestNotifierRearmsWhenStillLocked(t *testing.T) {
	store := quota.NewMemoryStore()
	halfway := time.Now().Unix() - 30
	if err := store.Save(&quota.State{Feature: quota.FeatureFilter, UsageCount: 1, CooldownStart: halfway}); err != nil {
		t.Fatalf("Failed to seed state: %v", err)
	}

	provider := newStaticLimits(map[quota.Feature]quota.Limits{
		quota.FeatureFilter: {Limit: 1, CooldownSeconds: 60},
	}, quota.FeatureFilter)

	reg := quota.NewRegistry(store, provider)
	bc := NewBroadcaster()
	n := NewExpiryNotifier(reg, bc)
	reg.SetScheduler(n)
	if err := reg.Preload(); err != nil {
		t.Fatalf("Failed to preload registry: %v", err)
	}

	// Force a stale deadline while the window is still running
	n.mu.Lock()
	n.armed[quota.FeatureFilter] = armedCooldown{deadline: time.Now().Unix() - 5}
	n.mu.Unlock()

	n.fireDue()

	if len(bc.Recent()) != 0 {
		t.Errorf("Expected no announcement for a still-running window, got %d events", len(bc.Recent()))
	}

	n.mu.Lock()
	entry, armed := n.armed[quota.FeatureFilter]
	n.mu.Unlock()
	if !armed {
		t.Fatal("Expected notifier to re-arm for the rest of the window")
	}
	if entry.deadline <= time.Now().Unix() {
		t.Errorf("Expected re-armed deadline in the future, got %d", entry.deadline)
	}
}

func TestExpiredEventToSSE(t *testing.T) {
	ev := NewCooldownExpiredEvent(quota.GateStatus{Feature: quota.FeatureSearch, Allowed: true, Limit: 20, Remaining: 20})

	msg, err := ev.ToSSE()
	if err != nil {
		t.Fatalf("Failed to format SSE message: %v", err)
	}
	if !strings.HasPrefix(msg, "event: gate:cooldown_expired\ndata: ") {
		t.Errorf("Unexpected SSE framing: %q", msg)
	}
	if !strings.HasSuffix(msg, "\n\n") {
		t.Error("Expected SSE message to end with a blank line")
	}
	if !strings.Contains(msg, `"feature":"search"`) {
		t.Errorf("Expected payload to carry the feature, got %q", msg)
	}
}
