package quota

import (
	"fmt"
	"log"
	"sync"
)

// Registry hands out the single Manager owning each feature. It
// replaces per-feature global singletons: construct one registry at
// startup and pass it to whatever gates actions.
type Registry struct {
	mu        sync.RWMutex
	managers  map[Feature]*Manager
	order     []Feature
	store     Store
	limits    LimitsProvider
	scheduler ExpiryScheduler
}

// NewRegistry builds a manager for every feature the provider knows.
func NewRegistry(store Store, limits LimitsProvider) *Registry {
	r := &Registry{
		managers: make(map[Feature]*Manager),
		store:    store,
		limits:   limits,
	}
	for _, f := range limits.Features() {
		r.managers[f] = NewManager(f, store, limits)
		r.order = append(r.order, f)
	}
	return r
}

// Manager returns the manager owning feature, or ok=false for a key
// the configuration does not know.
func (r *Registry) Manager(feature Feature) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[feature]
	return m, ok
}

// Features lists the gated features in configuration order.
func (r *Registry) Features() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Feature, len(r.order))
	copy(out, r.order)
	return out
}

// Statuses snapshots every feature's gate in configuration order.
func (r *Registry) Statuses() []GateStatus {
	r.mu.RLock()
	managers := make([]*Manager, 0, len(r.order))
	for _, f := range r.order {
		managers = append(managers, r.managers[f])
	}
	r.mu.RUnlock()

	out := make([]GateStatus, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.Status())
	}
	return out
}

// SetScheduler attaches the expiry notifier to every manager.
func (r *Registry) SetScheduler(s ExpiryScheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduler = s
	for _, m := range r.managers {
		m.SetScheduler(s)
	}
}

// Preload restores all persisted states in one read and re-arms the
// scheduler for any cooldown still running, so expiry announcements
// survive a restart. Call after SetScheduler.
func (r *Registry) Preload() error {
	r.mu.RLock()
	store := r.store
	r.mu.RUnlock()

	if store == nil {
		return nil
	}

	states, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to preload quota states: %w", err)
	}

	loaded := 0
	for _, st := range states {
		m, ok := r.Manager(st.Feature)
		if !ok {
			continue
		}
		m.restore(st)
		loaded++
	}

	if loaded > 0 {
		log.Printf("✅ Loaded %d feature quota states from persistence", loaded)
	}
	return nil
}

// Sync creates managers for features added to the configuration at
// runtime. Existing managers are kept, including those whose feature
// was removed from the configuration.
func (r *Registry) Sync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.limits.Features() {
		if _, ok := r.managers[f]; ok {
			continue
		}
		m := NewManager(f, r.store, r.limits)
		m.SetScheduler(r.scheduler)
		m.Reload()
		r.managers[f] = m
		r.order = append(r.order, f)
		log.Printf("✅ Feature gate registered at runtime: %s", f)
	}
}

// ResetAll clears every feature's usage (tier upgrade path).
func (r *Registry) ResetAll() {
	r.mu.RLock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.RUnlock()

	for _, m := range managers {
		m.ResetUsage()
	}
}
