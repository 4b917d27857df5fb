package quota

import (
	"testing"
	"time"
)

func testProvider() *staticLimits {
	return newStaticLimits(map[Feature]Limits{
		FeatureConversation: {Limit: 5, CooldownSeconds: 300},
		FeatureRefresh:      {Limit: 10, CooldownSeconds: 60},
	}, FeatureConversation, FeatureRefresh)
}

func TestRegistryReturnsSameManagerPerFeature(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), testProvider())

	m1, ok := r.Manager(FeatureConversation)
	if !ok {
		t.Fatalf("expected manager for conversation")
	}
	m2, _ := r.Manager(FeatureConversation)
	if m1 != m2 {
		t.Fatalf("expected the same manager instance on repeated lookup")
	}

	if _, ok := r.Manager(Feature("profile-boost")); ok {
		t.Fatalf("expected no manager for an unconfigured feature")
	}
}

func TestRegistryFeatureOrder(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), testProvider())

	features := r.Features()
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
	if features[0] != FeatureConversation || features[1] != FeatureRefresh {
		t.Fatalf("unexpected feature order: %v", features)
	}

	statuses := r.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Feature != FeatureConversation {
		t.Fatalf("expected statuses in configuration order, got %v", statuses[0].Feature)
	}
}

func TestRegistryPreloadRestoresAndRearms(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().Unix()
	store.Save(&State{Feature: FeatureConversation, UsageCount: 5, CooldownStart: now})
	store.Save(&State{Feature: FeatureRefresh, UsageCount: 3})
	// A state for a feature this installation no longer gates.
	store.Save(&State{Feature: Feature("legacy"), UsageCount: 9})

	r := NewRegistry(store, testProvider())
	sched := &stubScheduler{}
	r.SetScheduler(sched)

	if err := r.Preload(); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}

	m, _ := r.Manager(FeatureConversation)
	if st := m.Status(); st.UsageCount != 5 {
		t.Fatalf("expected restored usage count 5, got %+v", st)
	}

	m, _ = r.Manager(FeatureRefresh)
	if st := m.Status(); st.UsageCount != 3 {
		t.Fatalf("expected restored usage count 3, got %+v", st)
	}

	// Only the live cooldown re-arms the scheduler.
	if len(sched.arms) != 1 || sched.arms[0] != FeatureConversation {
		t.Fatalf("expected one re-arm for conversation, got %v", sched.arms)
	}
}

func TestRegistrySyncPicksUpNewFeatures(t *testing.T) {
	provider := testProvider()
	r := NewRegistry(NewMemoryStore(), provider)

	provider.mu.Lock()
	provider.limits[FeatureSearch] = Limits{Limit: 20, CooldownSeconds: 900}
	provider.order = append(provider.order, FeatureSearch)
	provider.mu.Unlock()

	if _, ok := r.Manager(FeatureSearch); ok {
		t.Fatalf("expected search to be unknown before Sync")
	}

	r.Sync()

	m, ok := r.Manager(FeatureSearch)
	if !ok {
		t.Fatalf("expected manager for search after Sync")
	}
	if st := m.Status(); st.Limit != 20 {
		t.Fatalf("expected synced limit 20, got %+v", st)
	}
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry(NewMemoryStore(), testProvider())

	for _, f := range r.Features() {
		m, _ := r.Manager(f)
		m.RecordUsage()
		m.RecordUsage()
	}

	r.ResetAll()

	for _, st := range r.Statuses() {
		if st.UsageCount != 0 || st.CooldownStart != 0 {
			t.Fatalf("expected %s reset, got %+v", st.Feature, st)
		}
	}
}
