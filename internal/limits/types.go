package limits

import "github.com/JillVernus/feature-gate/internal/quota"

// Tier names shipped with the default configuration.
const (
	TierFree      = "free"
	TierPlus      = "plus"
	TierUnlimited = "unlimited"
)

// FeatureLimit defines the gating parameters for one feature
type FeatureLimit struct {
	Limit           int   `json:"limit"`
	CooldownSeconds int64 `json:"cooldownSeconds"`
}

// TierLimits defines per-feature limits for one subscription tier.
// An unlimited tier bypasses gating for every feature.
type TierLimits struct {
	Unlimited bool                           `json:"unlimited,omitempty"`
	Features  map[quota.Feature]FeatureLimit `json:"features,omitempty"`
}

// Config is the root limits configuration structure
type Config struct {
	ActiveTier string                `json:"activeTier"`
	Tiers      map[string]TierLimits `json:"tiers"`
}

// GetDefaultConfig returns the default limits configuration
func GetDefaultConfig() Config {
	return Config{
		ActiveTier: TierFree,
		Tiers: map[string]TierLimits{
			TierFree: {
				Features: map[quota.Feature]FeatureLimit{
					quota.FeatureConversation: {Limit: 5, CooldownSeconds: 3600},
					quota.FeatureRefresh:      {Limit: 10, CooldownSeconds: 300},
					quota.FeatureSearch:       {Limit: 20, CooldownSeconds: 600},
					quota.FeatureFilter:       {Limit: 5, CooldownSeconds: 900},
					quota.FeatureMessage:      {Limit: 50, CooldownSeconds: 1800},
				},
			},
			TierPlus: {
				Features: map[quota.Feature]FeatureLimit{
					quota.FeatureConversation: {Limit: 20, CooldownSeconds: 1800},
					quota.FeatureRefresh:      {Limit: 40, CooldownSeconds: 120},
					quota.FeatureSearch:       {Limit: 100, CooldownSeconds: 300},
					quota.FeatureFilter:       {Limit: 20, CooldownSeconds: 300},
					quota.FeatureMessage:      {Limit: 200, CooldownSeconds: 600},
				},
			},
			TierUnlimited: {
				Unlimited: true,
			},
		},
	}
}
