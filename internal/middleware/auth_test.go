package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JillVernus/feature-gate/internal/config"
	"github.com/gin-gonic/gin"
)

// setupRouterWithAuth builds a minimal router with the auth middleware wired.
func setupRouterWithAuth(envCfg *config.EnvConfig, failureLimiter *AuthFailureRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AccessAuthMiddleware(envCfg, failureLimiter))

	// Protected management API
	r.GET("/api/features", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Public health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}

func TestAccessAuthMiddleware_APIRequiresKey(t *testing.T) {
	envCfg := &config.EnvConfig{
		GateAccessKey:   "secret-key",
		HealthCheckPath: "/health",
	}
	router := setupRouterWithAuth(envCfg, nil)

	t.Run("missing key returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("wrong key returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
		req.Header.Set("x-api-key", "wrong")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("x-api-key header allows access", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
		req.Header.Set("x-api-key", envCfg.GateAccessKey)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("bearer token allows access", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
		req.Header.Set("Authorization", "Bearer "+envCfg.GateAccessKey)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("query key allows access for SSE clients", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/features?key="+envCfg.GateAccessKey, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestAccessAuthMiddleware_HealthBypassesAuth(t *testing.T) {
	envCfg := &config.EnvConfig{
		GateAccessKey:   "secret-key",
		HealthCheckPath: "/health",
	}
	router := setupRouterWithAuth(envCfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAccessAuthMiddleware_BruteForceBlocks(t *testing.T) {
	envCfg := &config.EnvConfig{
		GateAccessKey:   "secret-key",
		HealthCheckPath: "/health",
	}
	failureLimiter := NewAuthFailureRateLimiter()
	defer failureLimiter.Stop()

	router := setupRouterWithAuth(envCfg, failureLimiter)

	// Five bad keys from the same IP trip the first threshold
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
		req.Header.Set("x-api-key", "wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d (attempt %d)", w.Code, http.StatusUnauthorized, i+1)
		}
	}

	// Even the correct key is rejected while the IP is blocked
	req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
	req.Header.Set("x-api-key", envCfg.GateAccessKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}
