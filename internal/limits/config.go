package limits

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// ConfigManager manages feature limit configuration with hot-reload
// support. It implements quota.LimitsProvider, so limit changes are
// visible to the gate managers on their next read without a restart.
type ConfigManager struct {
	mu         sync.RWMutex
	config     Config
	configFile string
	watcher    *fsnotify.Watcher
	onChange   func(Config) // callback when config changes
}

// NewConfigManager loads the limits configuration from configFile and
// starts watching it for changes. A missing or unreadable file falls
// back to the default tiers, which are then written out.
func NewConfigManager(configFile string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configFile: configFile,
	}

	if err := cm.loadConfig(); err != nil {
		log.Printf("⚠️ Limits config file not found, using defaults: %v", err)
		cm.config = normalizeConfig(GetDefaultConfig())
		// Save default config to file
		if err := cm.saveConfig(); err != nil {
			log.Printf("⚠️ Failed to save default limits config: %v", err)
		}
	}

	// Start file watcher
	if err := cm.startWatcher(); err != nil {
		log.Printf("⚠️ Failed to start limits config watcher: %v", err)
	}

	return cm, nil
}

// loadConfig loads configuration from file
func (cm *ConfigManager) loadConfig() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := os.ReadFile(cm.configFile)
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	cm.config = normalizeConfig(config)
	log.Printf("✅ Limits config loaded: tier=%s, %d tiers", cm.config.ActiveTier, len(cm.config.Tiers))
	return nil
}

// saveConfig saves configuration to file
func (cm *ConfigManager) saveConfig() error {
	// Ensure directory exists
	dir := filepath.Dir(cm.configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cm.mu.RLock()
	cfg := cloneConfig(cm.config)
	cm.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cm.configFile, data, 0644)
}

// startWatcher starts file change monitoring
func (cm *ConfigManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	cm.watcher = watcher

	configBase := filepath.Base(cm.configFile)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// We watch the directory; ignore unrelated files.
				if filepath.Base(event.Name) != configBase {
					continue
				}

				// Many editors update files via atomic rename/create, not only Write.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Printf("📝 Limits config file updated, reloading...")
					if err := cm.loadConfig(); err != nil {
						log.Printf("⚠️ Failed to reload limits config: %v", err)
						continue
					}

					cm.mu.RLock()
					cfg := cloneConfig(cm.config)
					cb := cm.onChange
					cm.mu.RUnlock()

					if cb != nil {
						cb(cfg)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ Limits config watcher error: %v", err)
			}
		}
	}()

	// Watch the config file's directory to handle file creation
	dir := filepath.Dir(cm.configFile)
	if err := watcher.Add(dir); err != nil {
		// Try watching the file directly if directory watch fails
		return watcher.Add(cm.configFile)
	}
	return nil
}

// SetOnChangeCallback sets a callback function to be called when config changes
func (cm *ConfigManager) SetOnChangeCallback(callback func(Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = callback
}

// Reload re-reads the configuration file on demand, without waiting
// for the file watcher to notice a change.
func (cm *ConfigManager) Reload() error {
	if err := cm.loadConfig(); err != nil {
		return err
	}

	cm.mu.RLock()
	cfg := cloneConfig(cm.config)
	cb := cm.onChange
	cm.mu.RUnlock()

	if cb != nil {
		cb(cfg)
	}
	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cloneConfig(cm.config)
}

// ActiveTier returns the currently active tier name
func (cm *ConfigManager) ActiveTier() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.ActiveTier
}

// UpdateConfig updates the configuration and saves to file
func (cm *ConfigManager) UpdateConfig(config Config) error {
	if err := validateConfig(config); err != nil {
		return err
	}
	config = normalizeConfig(config)

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(cm.configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(cm.configFile, data, 0644); err != nil {
		return err
	}

	cm.mu.Lock()
	cm.config = cloneConfig(config)
	cb := cm.onChange
	cfg := cloneConfig(cm.config)
	cm.mu.Unlock()

	log.Printf("✅ Limits config updated: tier=%s, %d tiers", config.ActiveTier, len(config.Tiers))

	// Trigger callback
	if cb != nil {
		cb(cfg)
	}

	return nil
}

// SetActiveTier switches the active tier, e.g. after a subscription
// purchase, and persists the change.
func (cm *ConfigManager) SetActiveTier(tier string) error {
	cm.mu.RLock()
	_, ok := cm.config.Tiers[tier]
	cm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tier: %s", tier)
	}

	cfg := cm.GetConfig()
	cfg.ActiveTier = tier
	if err := cm.UpdateConfig(cfg); err != nil {
		return err
	}

	log.Printf("🔒 Active tier switched to %s", tier)
	return nil
}

// Close closes the config manager and stops the file watcher
func (cm *ConfigManager) Close() error {
	if cm.watcher != nil {
		return cm.watcher.Close()
	}
	return nil
}

// FeatureLimits implements quota.LimitsProvider. Features missing from
// the active tier are treated as ungated.
func (cm *ConfigManager) FeatureLimits(feature quota.Feature) quota.Limits {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	tier := cm.config.Tiers[cm.config.ActiveTier]
	if tier.Unlimited {
		return quota.Limits{Unlimited: true}
	}

	fl, ok := tier.Features[feature]
	if !ok {
		return quota.Limits{Unlimited: true}
	}

	return quota.Limits{
		Limit:           fl.Limit,
		CooldownSeconds: fl.CooldownSeconds,
	}
}

// Features implements quota.LimitsProvider: the built-in features plus
// any extra feature configured in any tier, in stable order.
func (cm *ConfigManager) Features() []quota.Feature {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	seen := make(map[quota.Feature]bool, len(quota.DefaultFeatures))
	features := make([]quota.Feature, 0, len(quota.DefaultFeatures))
	for _, f := range quota.DefaultFeatures {
		seen[f] = true
		features = append(features, f)
	}

	var extras []quota.Feature
	for _, tier := range cm.config.Tiers {
		for f := range tier.Features {
			if !seen[f] {
				seen[f] = true
				extras = append(extras, f)
			}
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })

	return append(features, extras...)
}

// validateConfig rejects structurally broken configurations. Value
// problems are clamped by normalizeConfig instead.
func validateConfig(config Config) error {
	if len(config.Tiers) == 0 {
		return fmt.Errorf("config must define at least one tier")
	}
	if config.ActiveTier == "" {
		return fmt.Errorf("activeTier must be set")
	}
	if _, ok := config.Tiers[config.ActiveTier]; !ok {
		return fmt.Errorf("activeTier %q is not a defined tier", config.ActiveTier)
	}
	return nil
}

// normalizeConfig clamps out-of-range values and repairs a missing or
// unknown active tier. Gating must never block forever on bad config,
// so values are fixed up rather than rejected.
func normalizeConfig(config Config) Config {
	config = cloneConfig(config)

	if len(config.Tiers) == 0 {
		log.Printf("⚠️ Limits config has no tiers, restoring defaults")
		return GetDefaultConfig()
	}

	if _, ok := config.Tiers[config.ActiveTier]; !ok {
		log.Printf("⚠️ Unknown active tier %q, falling back to %s", config.ActiveTier, TierFree)
		if _, ok := config.Tiers[TierFree]; !ok {
			config.Tiers[TierFree] = GetDefaultConfig().Tiers[TierFree]
		}
		config.ActiveTier = TierFree
	}

	for name, tier := range config.Tiers {
		for feature, fl := range tier.Features {
			if fl.Limit <= 0 {
				log.Printf("⚠️ Invalid limit %d for %s/%s, clamping to 1", fl.Limit, name, feature)
				fl.Limit = 1
			}
			if fl.CooldownSeconds < 0 {
				log.Printf("⚠️ Invalid cooldown %ds for %s/%s, clamping to 0", fl.CooldownSeconds, name, feature)
				fl.CooldownSeconds = 0
			}
			tier.Features[feature] = fl
		}
	}

	return config
}

func cloneConfig(config Config) Config {
	if config.Tiers == nil {
		return config
	}
	tiers := make(map[string]TierLimits, len(config.Tiers))
	for name, tier := range config.Tiers {
		cloned := tier
		if tier.Features != nil {
			features := make(map[quota.Feature]FeatureLimit, len(tier.Features))
			for f, fl := range tier.Features {
				features[f] = fl
			}
			cloned.Features = features
		}
		tiers[name] = cloned
	}
	config.Tiers = tiers
	return config
}
