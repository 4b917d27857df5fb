package quota

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// staticLimits is a LimitsProvider backed by a plain map.
type staticLimits struct {
	mu     sync.Mutex
	limits map[Feature]Limits
	order  []Feature
}

func newStaticLimits(limits map[Feature]Limits, order ...Feature) *staticLimits {
	return &staticLimits{limits: limits, order: order}
}

func (p *staticLimits) FeatureLimits(f Feature) Limits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limits[f]
}

func (p *staticLimits) Features() []Feature {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Feature(nil), p.order...)
}

func (p *staticLimits) set(f Feature, l Limits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[f] = l
}

// testClock is a manually advanced clock for manager tests.
type testClock struct {
	mu  sync.Mutex
	sec int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.sec, 0)
}

func (c *testClock) advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sec += seconds
}

// countingStore wraps MemoryStore and can fail the first N saves.
type countingStore struct {
	MemoryStore
	mu        sync.Mutex
	saveCalls int
	failNext  int
}

func (s *countingStore) Save(state *State) error {
	s.mu.Lock()
	s.saveCalls++
	fail := s.failNext > 0
	if fail {
		s.failNext--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Save(state)
}

func (s *countingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

// stubScheduler records Arm/Disarm calls.
type stubScheduler struct {
	mu      sync.Mutex
	arms    []Feature
	disarms []Feature
	start   int64
	dur     int64
}

func (s *stubScheduler) Arm(f Feature, start, dur int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arms = append(s.arms, f)
	s.start = start
	s.dur = dur
}

func (s *stubScheduler) Disarm(f Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarms = append(s.disarms, f)
}

func newTestManager(feature Feature, l Limits, clock *testClock) (*Manager, *countingStore) {
	store := &countingStore{MemoryStore: MemoryStore{states: make(map[Feature]State)}}
	provider := newStaticLimits(map[Feature]Limits{feature: l}, feature)
	m := NewManager(feature, store, provider)
	m.now = clock.Now
	return m, store
}

func TestManagerExhaustionLocksFeature(t *testing.T) {
	clock := &testClock{sec: 1000}
	m, _ := newTestManager(FeatureConversation, Limits{Limit: 5, CooldownSeconds: 300}, clock)

	for i := 0; i < 5; i++ {
		if !m.CanPerform() {
			t.Fatalf("use %d: expected feature to be available", i+1)
		}
		if _, recorded := m.RecordUsage(); !recorded {
			t.Fatalf("use %d: expected usage to be recorded", i+1)
		}
	}

	if m.CanPerform() {
		t.Fatalf("expected feature to be locked after reaching the limit")
	}
	if got := m.RemainingCooldown(); got != 300 {
		t.Fatalf("expected remaining cooldown 300, got %d", got)
	}

	st := m.Status()
	if st.Allowed {
		t.Fatalf("expected Allowed=false in locked status: %+v", st)
	}
	if st.UsageCount != 5 || st.Remaining != 0 {
		t.Fatalf("unexpected locked status counts: %+v", st)
	}
	if st.CooldownStart != 1000 {
		t.Fatalf("expected cooldown start 1000, got %d", st.CooldownStart)
	}
}

func TestManagerSelfHealsAfterExpiry(t *testing.T) {
	clock := &testClock{sec: 1000}
	m, store := newTestManager(FeatureConversation, Limits{Limit: 5, CooldownSeconds: 300}, clock)

	for i := 0; i < 5; i++ {
		m.RecordUsage()
	}
	if m.CanPerform() {
		t.Fatalf("expected locked feature before expiry")
	}

	clock.advance(301)

	if !m.CanPerform() {
		t.Fatalf("expected feature to be available after cooldown expiry")
	}

	st := m.Status()
	if st.UsageCount != 0 || st.CooldownStart != 0 {
		t.Fatalf("expected state to be reset after self-heal: %+v", st)
	}

	// The reset must also reach the store.
	persisted, err := store.Load(FeatureConversation)
	if err != nil {
		t.Fatalf("failed to load persisted state: %v", err)
	}
	if persisted == nil || persisted.UsageCount != 0 || persisted.CooldownStart != 0 {
		t.Fatalf("expected reset state persisted, got %+v", persisted)
	}

	// Checking again is idempotent.
	if !m.CanPerform() {
		t.Fatalf("expected second check after expiry to stay available")
	}
}

func TestPopupOpenArmsFullWindow(t *testing.T) {
	clock := &testClock{sec: 100}
	m, _ := newTestManager(FeatureRefresh, Limits{Limit: 3, CooldownSeconds: 300}, clock)

	// The limit was reached earlier by a path that never started the
	// clock: count at limit, no cooldown armed.
	m.restore(&State{Feature: FeatureRefresh, UsageCount: 3})

	st, started := m.StartCooldownOnPopupOpen()
	if !started {
		t.Fatalf("expected popup open to start the cooldown")
	}
	if st.CooldownStart != 100 {
		t.Fatalf("expected cooldown to start at popup-open time 100, got %d", st.CooldownStart)
	}

	// The full window runs from popup open, not from when the limit
	// was reached.
	clock.advance(150)
	if got := m.RemainingCooldown(); got != 150 {
		t.Fatalf("expected remaining 150, got %d", got)
	}

	// A second popup open must not restart the window.
	st, started = m.StartCooldownOnPopupOpen()
	if started {
		t.Fatalf("expected second popup open to be a no-op")
	}
	if st.CooldownStart != 100 {
		t.Fatalf("expected cooldown start unchanged at 100, got %d", st.CooldownStart)
	}
}

func TestResetUnlocksImmediately(t *testing.T) {
	clock := &testClock{sec: 500}
	m, _ := newTestManager(FeatureSearch, Limits{Limit: 2, CooldownSeconds: 600}, clock)

	m.RecordUsage()
	m.RecordUsage()
	if m.CanPerform() {
		t.Fatalf("expected locked feature before reset")
	}

	st := m.ResetUsage()
	if !st.Allowed || st.UsageCount != 0 || st.CooldownStart != 0 {
		t.Fatalf("expected reset status to be available: %+v", st)
	}
	if got := m.RemainingCooldown(); got != 0 {
		t.Fatalf("expected remaining cooldown 0 after reset, got %d", got)
	}
	if !m.CanPerform() {
		t.Fatalf("expected feature available after reset")
	}

	// Resetting an already clean state stays clean.
	st = m.ResetUsage()
	if !st.Allowed || st.UsageCount != 0 {
		t.Fatalf("expected idempotent reset: %+v", st)
	}
}

func TestRecordUsageWhileLockedDoesNotExtendCooldown(t *testing.T) {
	clock := &testClock{sec: 1000}
	m, _ := newTestManager(FeatureFilter, Limits{Limit: 1, CooldownSeconds: 300}, clock)

	m.RecordUsage()
	clock.advance(100)

	st, recorded := m.RecordUsage()
	if recorded {
		t.Fatalf("expected locked usage to be rejected")
	}
	if st.UsageCount != 1 {
		t.Fatalf("expected usage count to stay at 1, got %d", st.UsageCount)
	}
	if st.CooldownStart != 1000 {
		t.Fatalf("expected cooldown start unchanged at 1000, got %d", st.CooldownStart)
	}
	if got := m.RemainingCooldown(); got != 200 {
		t.Fatalf("expected remaining 200, got %d", got)
	}
}

func TestRecordUsageAfterExpiryHealsAndCounts(t *testing.T) {
	clock := &testClock{sec: 1000}
	m, _ := newTestManager(FeatureSearch, Limits{Limit: 2, CooldownSeconds: 300}, clock)

	m.RecordUsage()
	m.RecordUsage()
	clock.advance(301)

	// No intermediate read: the record itself must heal the expired
	// window and count as the first use of the fresh window.
	st, recorded := m.RecordUsage()
	if !recorded {
		t.Fatalf("expected usage after expiry to be recorded")
	}
	if st.UsageCount != 1 {
		t.Fatalf("expected fresh window to count 1 use, got %d", st.UsageCount)
	}
	if st.CooldownStart != 0 {
		t.Fatalf("expected no cooldown in fresh window, got start %d", st.CooldownStart)
	}
	if !st.Allowed {
		t.Fatalf("expected feature available with 1 of 2 uses: %+v", st)
	}
}

func TestLimitChangeAppliesOnNextRead(t *testing.T) {
	clock := &testClock{sec: 0}
	provider := newStaticLimits(map[Feature]Limits{
		FeatureMessage: {Limit: 2, CooldownSeconds: 300},
	}, FeatureMessage)
	m := NewManager(FeatureMessage, NewMemoryStore(), provider)
	m.now = clock.Now

	m.RecordUsage()
	m.RecordUsage()
	if m.CanPerform() {
		t.Fatalf("expected locked feature at the old limit")
	}

	// A tier upgrade raises the limit at runtime; the next read must
	// see it without a restart.
	provider.set(FeatureMessage, Limits{Limit: 10, CooldownSeconds: 300})
	if !m.CanPerform() {
		t.Fatalf("expected feature available after the limit was raised")
	}

	st := m.Status()
	if st.Limit != 10 {
		t.Fatalf("expected status limit 10, got %d", st.Limit)
	}
}

func TestInvalidLimitsClamped(t *testing.T) {
	clock := &testClock{sec: 0}
	m, _ := newTestManager(FeatureSearch, Limits{Limit: 0, CooldownSeconds: -10}, clock)

	st := m.Status()
	if st.Limit != 1 {
		t.Fatalf("expected invalid limit clamped to 1, got %d", st.Limit)
	}
	if st.CooldownSeconds != 0 {
		t.Fatalf("expected negative cooldown clamped to 0, got %d", st.CooldownSeconds)
	}

	// With the clamped zero cooldown the gate recovers on the next
	// check instead of wedging shut.
	m.RecordUsage()
	if !m.CanPerform() {
		t.Fatalf("expected clamped config to keep the feature usable")
	}
	if st := m.Status(); st.UsageCount != 0 {
		t.Fatalf("expected count reset by zero-length cooldown, got %d", st.UsageCount)
	}
}

func TestStoreWriteFailureIsRetriedOnceAndFailsOpen(t *testing.T) {
	clock := &testClock{sec: 0}
	m, store := newTestManager(FeatureConversation, Limits{Limit: 5, CooldownSeconds: 300}, clock)

	store.failNext = 1
	if _, recorded := m.RecordUsage(); !recorded {
		t.Fatalf("expected usage recorded despite write failure")
	}
	if got := store.calls(); got != 2 {
		t.Fatalf("expected one retry (2 save calls), got %d", got)
	}

	// Both attempts failing must not block the action either.
	store.failNext = 2
	if _, recorded := m.RecordUsage(); !recorded {
		t.Fatalf("expected usage recorded when both writes fail")
	}
	if st := m.Status(); st.UsageCount != 2 {
		t.Fatalf("expected in-memory count 2, got %d", st.UsageCount)
	}
}

func TestStoreReadFailureFailsOpen(t *testing.T) {
	clock := &testClock{sec: 0}
	m, _ := newTestManager(FeatureRefresh, Limits{Limit: 3, CooldownSeconds: 60}, clock)

	m.state = State{Feature: FeatureRefresh, UsageCount: 1}

	// Reload against a broken store keeps the in-memory state.
	broken := &brokenStore{}
	m.store = broken
	m.Reload()

	if st := m.Status(); st.UsageCount != 1 {
		t.Fatalf("expected in-memory state kept on read failure, got %+v", st)
	}
	if !m.CanPerform() {
		t.Fatalf("expected feature available on read failure (fail open)")
	}
}

type brokenStore struct{}

func (s *brokenStore) Save(*State) error            { return errors.New("store down") }
func (s *brokenStore) Load(Feature) (*State, error) { return nil, errors.New("store down") }
func (s *brokenStore) LoadAll() ([]*State, error)   { return nil, errors.New("store down") }

func TestUnlimitedTierBypassesGate(t *testing.T) {
	clock := &testClock{sec: 0}
	m, store := newTestManager(FeatureMessage, Limits{Unlimited: true}, clock)

	for i := 0; i < 50; i++ {
		if !m.CanPerform() {
			t.Fatalf("expected unlimited feature to always be available")
		}
		st, recorded := m.RecordUsage()
		if !recorded {
			t.Fatalf("expected unlimited usage to be accepted")
		}
		if !st.Allowed || st.UsageCount != 0 {
			t.Fatalf("expected unlimited status untouched: %+v", st)
		}
	}

	if got := store.calls(); got != 0 {
		t.Fatalf("expected no persistence for unlimited tier, got %d saves", got)
	}
}

func TestSchedulerArmedOnLockAndDisarmedOnHeal(t *testing.T) {
	clock := &testClock{sec: 2000}
	m, _ := newTestManager(FeatureConversation, Limits{Limit: 2, CooldownSeconds: 120}, clock)

	sched := &stubScheduler{}
	m.SetScheduler(sched)

	m.RecordUsage()
	if len(sched.arms) != 0 {
		t.Fatalf("expected no arm before the limit, got %v", sched.arms)
	}

	m.RecordUsage()
	if len(sched.arms) != 1 || sched.arms[0] != FeatureConversation {
		t.Fatalf("expected one arm for the feature, got %v", sched.arms)
	}
	if sched.start != 2000 || sched.dur != 120 {
		t.Fatalf("expected arm(2000, 120), got arm(%d, %d)", sched.start, sched.dur)
	}

	clock.advance(121)
	m.CanPerform()
	if len(sched.disarms) != 1 {
		t.Fatalf("expected one disarm after self-heal, got %v", sched.disarms)
	}
}
