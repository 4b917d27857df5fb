package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/JillVernus/feature-gate/internal/limits"
	"github.com/JillVernus/feature-gate/internal/quota"
)

// LimitsHandler handles limit configuration API endpoints
type LimitsHandler struct {
	cfgManager *limits.ConfigManager
	registry   *quota.Registry
}

// NewLimitsHandler creates a new limits handler
func NewLimitsHandler(cm *limits.ConfigManager, registry *quota.Registry) *LimitsHandler {
	return &LimitsHandler{cfgManager: cm, registry: registry}
}

// GetLimits returns the current limit configuration
// GET /api/limits
func (h *LimitsHandler) GetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfgManager.GetConfig())
}

// UpdateLimits replaces the limit configuration
// PUT /api/limits
func (h *LimitsHandler) UpdateLimits(c *gin.Context) {
	var config limits.Config
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	h.applyConfig(c, config)
}

// PatchLimits applies a merge patch to the limit configuration:
// objects merge recursively, null deletes, everything else replaces.
// PATCH /api/limits
func (h *LimitsHandler) PatchLimits(c *gin.Context) {
	patch, err := io.ReadAll(c.Request.Body)
	if err != nil || len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty request body"})
		return
	}
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Patch must be a JSON object"})
		return
	}

	current, err := json.Marshal(h.cfgManager.GetConfig())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode current config: " + err.Error()})
		return
	}

	merged := mergePatch(current, gjson.ParseBytes(patch), "")

	var config limits.Config
	if err := json.Unmarshal(merged, &config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Patch does not produce a valid config: " + err.Error()})
		return
	}

	h.applyConfig(c, config)
}

// SetTier switches the active tier. Pass resetUsage to also clear all
// usage counters, the subscription upgrade path.
// POST /api/limits/tier
func (h *LimitsHandler) SetTier(c *gin.Context) {
	var req struct {
		Tier       string `json:"tier"`
		ResetUsage bool   `json:"resetUsage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Tier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be set"})
		return
	}

	if err := h.cfgManager.SetActiveTier(req.Tier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ResetUsage {
		h.registry.ResetAll()
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Active tier updated",
		"activeTier": req.Tier,
		"statuses":   h.registry.Statuses(),
	})
}

// ResetLimits restores the default limit configuration
// POST /api/limits/reset
func (h *LimitsHandler) ResetLimits(c *gin.Context) {
	defaultConfig := limits.GetDefaultConfig()
	if err := h.cfgManager.UpdateConfig(defaultConfig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset limits config: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Limits configuration reset to defaults",
		"config":  defaultConfig,
	})
}

// ReloadLimits re-reads the configuration file on demand
// POST /api/limits/reload
func ReloadLimits(cfgManager *limits.ConfigManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cfgManager.Reload(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Limits config reload failed",
				"error":   err.Error(),
			})
			return
		}

		config := cfgManager.GetConfig()
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Limits config reloaded",
			"config":  config,
		})
	}
}

// applyConfig validates, stores and reports a full configuration. The
// response carries the stored config, so clamped values are visible to
// the caller.
func (h *LimitsHandler) applyConfig(c *gin.Context, config limits.Config) {
	if len(config.Tiers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Config must define at least one tier"})
		return
	}
	if config.ActiveTier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "activeTier must be set"})
		return
	}
	if _, ok := config.Tiers[config.ActiveTier]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "activeTier is not a defined tier"})
		return
	}

	if err := h.cfgManager.UpdateConfig(config); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save limits config: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Limits configuration updated",
		"config":  h.cfgManager.GetConfig(),
	})
}

// mergePatch walks the patch object and writes each leaf into doc.
func mergePatch(doc []byte, patch gjson.Result, prefix string) []byte {
	patch.ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		if prefix != "" {
			path = prefix + "." + key.String()
		}
		switch {
		case value.IsObject():
			doc = mergePatch(doc, value, path)
		case value.Type == gjson.Null:
			doc, _ = sjson.DeleteBytes(doc, path)
		default:
			doc, _ = sjson.SetRawBytes(doc, path, []byte(value.Raw))
		}
		return true
	})
	return doc
}
