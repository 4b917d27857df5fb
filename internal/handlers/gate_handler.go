package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JillVernus/feature-gate/internal/notify"
	"github.com/JillVernus/feature-gate/internal/quota"
)

// GateHandler handles feature gate API endpoints
type GateHandler struct {
	registry    *quota.Registry
	broadcaster *notify.Broadcaster
}

// NewGateHandler creates a new gate handler
func NewGateHandler(registry *quota.Registry, broadcaster *notify.Broadcaster) *GateHandler {
	return &GateHandler{registry: registry, broadcaster: broadcaster}
}

// manager resolves the :feature URL parameter, answering 404 for keys
// the configuration does not know.
func (h *GateHandler) manager(c *gin.Context) (*quota.Manager, bool) {
	feature := quota.Feature(c.Param("feature"))
	m, ok := h.registry.Manager(feature)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown feature: " + string(feature)})
		return nil, false
	}
	return m, true
}

// ListFeatures returns the gate status of every feature
// GET /api/features
func (h *GateHandler) ListFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Statuses())
}

// GetFeature returns the gate status of a single feature
// GET /api/features/:feature
func (h *GateHandler) GetFeature(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.Status())
}

// CheckFeature reports whether the feature may be used right now
// GET /api/features/:feature/check
func (h *GateHandler) CheckFeature(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feature": m.Feature(),
		"allowed": m.CanPerform(),
	})
}

// Consume counts one use of the feature. A use arriving while the
// feature is locked is rejected with 429 and a Retry-After hint.
// POST /api/features/:feature/consume
func (h *GateHandler) Consume(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}

	status, counted := m.RecordUsage()
	if !counted {
		c.Header("Retry-After", strconv.FormatInt(status.RemainingCooldown, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  "Feature limit reached",
			"status": status,
		})
		return
	}

	h.broadcaster.Broadcast(notify.NewUsageRecordedEvent(status))
	if !status.Allowed && status.CooldownStart != 0 {
		h.broadcaster.Broadcast(notify.NewCooldownStartedEvent(status))
	}

	c.JSON(http.StatusOK, status)
}

// StartCooldown arms the cooldown clock when the limit popup opens.
// No-op when the clock is already running or the limit is not reached.
// POST /api/features/:feature/cooldown
func (h *GateHandler) StartCooldown(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}

	status, started := m.StartCooldownOnPopupOpen()
	if started {
		h.broadcaster.Broadcast(notify.NewCooldownStartedEvent(status))
	}

	c.JSON(http.StatusOK, gin.H{
		"started": started,
		"status":  status,
	})
}

// ResetFeature clears the usage counter and any cooldown
// POST /api/features/:feature/reset
func (h *GateHandler) ResetFeature(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}

	status := m.ResetUsage()
	h.broadcaster.Broadcast(notify.NewGateResetEvent(status))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  status,
	})
}

// ResetAllFeatures clears every feature's usage, e.g. after a
// subscription upgrade
// POST /api/features/reset
func (h *GateHandler) ResetAllFeatures(c *gin.Context) {
	h.registry.ResetAll()

	statuses := h.registry.Statuses()
	for _, st := range statuses {
		h.broadcaster.Broadcast(notify.NewGateResetEvent(st))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"statuses": statuses,
	})
}
