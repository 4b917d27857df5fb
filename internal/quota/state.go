// Package quota implements per-feature usage limits with cooldown
// windows: every gated feature carries a usage counter, and once the
// counter reaches the configured limit a cooldown must elapse before
// the feature unlocks again.
package quota

// Feature identifies one gated feature.
type Feature string

const (
	FeatureConversation Feature = "conversation"
	FeatureRefresh      Feature = "refresh"
	FeatureSearch       Feature = "search"
	FeatureFilter       Feature = "filter"
	FeatureMessage      Feature = "message"
)

// DefaultFeatures is the built-in feature set, in display order.
var DefaultFeatures = []Feature{
	FeatureConversation,
	FeatureRefresh,
	FeatureSearch,
	FeatureFilter,
	FeatureMessage,
}

// State is the persisted quota record for a single feature.
// CooldownStart is epoch seconds; 0 means no active cooldown.
type State struct {
	Feature       Feature `json:"feature"`
	UsageCount    int     `json:"usageCount"`
	CooldownStart int64   `json:"cooldownStart"`
}

// Limits are the effective gating parameters for a feature. They are
// supplied by a LimitsProvider and re-read on every operation, so
// runtime configuration changes apply without a restart.
type Limits struct {
	Limit           int   `json:"limit"`
	CooldownSeconds int64 `json:"cooldownSeconds"`
	Unlimited       bool  `json:"unlimited,omitempty"`
}

// LimitsProvider supplies the current limits per feature and the set
// of features that exist at all.
type LimitsProvider interface {
	FeatureLimits(feature Feature) Limits
	Features() []Feature
}

// GateStatus is the derived view of one feature's gate as served to
// clients. Allowed is always computed from state, never stored.
type GateStatus struct {
	Feature           Feature `json:"feature"`
	Allowed           bool    `json:"allowed"`
	UsageCount        int     `json:"usageCount"`
	Limit             int     `json:"limit"`
	Remaining         int     `json:"remaining"`
	Unlimited         bool    `json:"unlimited,omitempty"`
	CooldownSeconds   int64   `json:"cooldownSeconds"`
	CooldownStart     int64   `json:"cooldownStart,omitempty"`
	RemainingCooldown int64   `json:"remainingCooldown"`
	CooldownEndsAt    *string `json:"cooldownEndsAt,omitempty"`
}
