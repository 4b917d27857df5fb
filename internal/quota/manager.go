package quota

import (
	"log"
	"sync"
	"time"
)

// ExpiryScheduler receives cooldown scheduling hints so a background
// notifier can announce expiry. It is advisory only: managers never
// rely on it for correctness, availability is always re-derived from
// state on read.
type ExpiryScheduler interface {
	Arm(feature Feature, startEpoch, durationSeconds int64)
	Disarm(feature Feature)
}

// Manager owns the quota state of a single feature. Every mutation
// goes through the manager, which serializes access with its own
// mutex, so features never contend with each other.
type Manager struct {
	mu        sync.Mutex
	feature   Feature
	state     State
	limits    LimitsProvider
	store     Store
	scheduler ExpiryScheduler
	now       func() time.Time
}

// NewManager creates a manager with zero state. Persisted state is
// restored through Reload or Registry.Preload.
func NewManager(feature Feature, store Store, limits LimitsProvider) *Manager {
	return &Manager{
		feature: feature,
		state:   State{Feature: feature},
		limits:  limits,
		store:   store,
		now:     time.Now,
	}
}

// Feature returns the feature this manager gates.
func (m *Manager) Feature() Feature {
	return m.feature
}

// SetScheduler attaches the expiry notifier hook.
func (m *Manager) SetScheduler(s ExpiryScheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
}

// Reload restores persisted state from the store. Read failures keep
// the current in-memory state so the feature stays usable (fail open).
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return
	}
	st, err := m.store.Load(m.feature)
	if err != nil {
		log.Printf("⚠️ [%s] failed to load quota state, keeping in-memory state: %v", m.feature, err)
		return
	}
	if st != nil {
		m.restoreLocked(st)
	}
}

// restore replaces in-memory state with a persisted record, re-arming
// the scheduler when the record carries a live cooldown.
func (m *Manager) restore(st *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoreLocked(st)
}

func (m *Manager) restoreLocked(st *State) {
	m.state = *st
	m.state.Feature = m.feature
	if m.state.CooldownStart != 0 && m.scheduler != nil {
		l := m.effectiveLimits()
		m.scheduler.Arm(m.feature, m.state.CooldownStart, l.CooldownSeconds)
	}
}

// CanPerform reports whether the feature may be used right now. When
// it observes an expired cooldown it resets the state in place, so a
// locked feature heals on the first check after the window rather
// than on a timer.
func (m *Manager) CanPerform() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateLocked(m.effectiveLimits(), m.now().Unix())
}

// RecordUsage counts one use. Reaching the limit starts the cooldown
// window. Recording while the feature is locked is a caller error: the
// count is not incremented and a running cooldown is not extended. An
// expired window heals first, so the use after the window counts
// normally. The second return reports whether the use was counted.
func (m *Manager) RecordUsage() (GateStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.effectiveLimits()
	now := m.now().Unix()

	if l.Unlimited {
		return m.statusLocked(l, now), true
	}

	if !m.evaluateLocked(l, now) {
		log.Printf("🚫 [%s] usage recorded while locked, ignoring (count=%d limit=%d)",
			m.feature, m.state.UsageCount, l.Limit)
		return m.statusLocked(l, now), false
	}

	m.state.UsageCount++
	if m.state.UsageCount >= l.Limit {
		m.state.CooldownStart = now
		if m.scheduler != nil {
			m.scheduler.Arm(m.feature, now, l.CooldownSeconds)
		}
		log.Printf("🚫 [%s] limit %d reached, cooldown %ds started", m.feature, l.Limit, l.CooldownSeconds)
	}
	m.persistLocked()

	return m.statusLocked(l, now), true
}

// RemainingCooldown returns the seconds left before the feature
// unlocks, 0 when it is not locked. Pure read, no self-heal.
func (m *Manager) RemainingCooldown() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.effectiveLimits()
	if l.Unlimited || m.state.UsageCount < l.Limit {
		return 0
	}
	return Remaining(m.state.CooldownStart, l.CooldownSeconds, m.now().Unix())
}

// ResetUsage clears the counter and any cooldown, making the feature
// immediately available. Idempotent. This is the manual unlock path
// (tier upgrade, moderation).
func (m *Manager) ResetUsage() GateStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked("manual reset")
	l := m.effectiveLimits()
	return m.statusLocked(l, m.now().Unix())
}

// StartCooldownOnPopupOpen arms the cooldown at popup-open time when
// the limit was reached by a path that never started the clock. The
// user gets the full window from this call, not from the action that
// hit the limit. No-op when a cooldown is already running or the
// limit is not reached. The second return reports whether a cooldown
// was started.
func (m *Manager) StartCooldownOnPopupOpen() (GateStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.effectiveLimits()
	now := m.now().Unix()

	started := false
	if !l.Unlimited && m.state.UsageCount >= l.Limit && m.state.CooldownStart == 0 {
		m.state.CooldownStart = now
		m.persistLocked()
		if m.scheduler != nil {
			m.scheduler.Arm(m.feature, now, l.CooldownSeconds)
		}
		log.Printf("⏰ [%s] cooldown %ds armed at popup open", m.feature, l.CooldownSeconds)
		started = true
	}

	return m.statusLocked(l, now), started
}

// Status returns the gate snapshot. Like CanPerform it heals expired
// cooldowns in place, so polling clients see the reset state.
func (m *Manager) Status() GateStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.effectiveLimits()
	now := m.now().Unix()
	m.evaluateLocked(l, now)
	return m.statusLocked(l, now)
}

// evaluateLocked derives availability at now, lazily resetting an
// expired cooldown before answering. Idempotent.
func (m *Manager) evaluateLocked(l Limits, now int64) bool {
	if l.Unlimited {
		return true
	}
	if m.state.UsageCount < l.Limit {
		return true
	}
	if HasExpired(m.state.CooldownStart, l.CooldownSeconds, now, DefaultExpiryTolerance) {
		m.resetLocked("cooldown expired")
		return true
	}
	return false
}

// resetLocked zeroes the state, persists and disarms. No-op when the
// state is already zero.
func (m *Manager) resetLocked(reason string) {
	if m.state.UsageCount == 0 && m.state.CooldownStart == 0 {
		return
	}
	m.state.UsageCount = 0
	m.state.CooldownStart = 0
	m.persistLocked()
	if m.scheduler != nil {
		m.scheduler.Disarm(m.feature)
	}
	log.Printf("🔄 [%s] quota reset (%s)", m.feature, reason)
}

// persistLocked writes the current state through the store. A failed
// write is retried once and then dropped with a log line; persistence
// never blocks the gate decision.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	st := m.state
	if err := m.store.Save(&st); err != nil {
		if retryErr := m.store.Save(&st); retryErr != nil {
			log.Printf("⚠️ [%s] failed to persist quota state (retried once): %v", m.feature, retryErr)
		}
	}
}

// effectiveLimits reads current limits from the provider, clamping
// invalid values to the safe minimum (limit 1, no cooldown). The
// config layer logs violations when they enter the system.
func (m *Manager) effectiveLimits() Limits {
	var l Limits
	if m.limits != nil {
		l = m.limits.FeatureLimits(m.feature)
	}
	if l.Unlimited {
		return l
	}
	if l.Limit <= 0 {
		l.Limit = 1
	}
	if l.CooldownSeconds < 0 {
		l.CooldownSeconds = 0
	}
	return l
}

// statusLocked builds the derived snapshot for the current state.
func (m *Manager) statusLocked(l Limits, now int64) GateStatus {
	st := GateStatus{
		Feature:         m.feature,
		UsageCount:      m.state.UsageCount,
		Limit:           l.Limit,
		Unlimited:       l.Unlimited,
		CooldownSeconds: l.CooldownSeconds,
		CooldownStart:   m.state.CooldownStart,
	}

	if l.Unlimited {
		st.Allowed = true
		return st
	}

	st.Remaining = l.Limit - st.UsageCount
	if st.Remaining < 0 {
		st.Remaining = 0
	}

	if st.UsageCount >= l.Limit {
		st.RemainingCooldown = Remaining(st.CooldownStart, l.CooldownSeconds, now)
		if st.CooldownStart != 0 {
			endsAt := time.Unix(st.CooldownStart+l.CooldownSeconds, 0).Format(time.RFC3339)
			st.CooldownEndsAt = &endsAt
		}
	}

	st.Allowed = st.UsageCount < l.Limit ||
		HasExpired(st.CooldownStart, l.CooldownSeconds, now, DefaultExpiryTolerance)

	return st
}
