package quota

import (
	"os"
	"testing"
)

// Redis tests run only against a live instance, e.g.
// REDIS_ADDR=localhost:6379 go test ./internal/quota/
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis storage tests")
	}

	store, err := NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), 15)
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	store := newTestRedisStore(t)

	if err := store.Save(&State{Feature: FeatureFilter, UsageCount: 3, CooldownStart: 1700000000}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	st, err := store.Load(FeatureFilter)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st == nil || st.UsageCount != 3 || st.CooldownStart != 1700000000 {
		t.Errorf("Unexpected state: %+v", st)
	}

	// Reset to keep the shared test database tidy
	if err := store.Save(&State{Feature: FeatureFilter}); err != nil {
		t.Fatalf("Cleanup save failed: %v", err)
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store := newTestRedisStore(t)

	st, err := store.Load(Feature("never-saved"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st != nil {
		t.Errorf("Expected nil for missing feature, got %+v", st)
	}
}

func TestRedisStoreLoadAll(t *testing.T) {
	store := newTestRedisStore(t)

	if err := store.Save(&State{Feature: FeatureSearch, UsageCount: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	found := false
	for _, st := range all {
		if st.Feature == FeatureSearch {
			found = true
			if st.UsageCount != 1 {
				t.Errorf("Expected usage 1, got %d", st.UsageCount)
			}
		}
	}
	if !found {
		t.Errorf("Expected LoadAll to include %s", FeatureSearch)
	}
}
