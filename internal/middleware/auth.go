package middleware

import (
	"crypto/subtle"
	"log"
	"strings"
	"time"

	"github.com/JillVernus/feature-gate/internal/config"
	"github.com/gin-gonic/gin"
)

// secureCompare performs a constant-time comparison of two strings
// to prevent timing attacks
func secureCompare(a, b string) bool {
	// Both strings must be non-empty and equal length for constant-time comparison
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// getAccessKey 获取访问密钥
func getAccessKey(c *gin.Context) string {
	// 从 header 获取
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}

	if auth := c.GetHeader("Authorization"); auth != "" {
		// 移除 Bearer 前缀
		return strings.TrimPrefix(auth, "Bearer ")
	}

	// EventSource 无法自定义 header，SSE 客户端通过 query 参数传递密钥
	return c.Query("key")
}

// AccessAuthMiddleware 管理 API 访问控制中间件（支持认证失败限制）
func AccessAuthMiddleware(envCfg *config.EnvConfig, failureLimiter *AuthFailureRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		clientIP := c.ClientIP()

		// 检查 IP 是否被封禁
		if failureLimiter != nil && failureLimiter.IsBlocked(clientIP) {
			c.JSON(429, gin.H{
				"error":   "Too Many Requests",
				"message": "由于多次认证失败，您的 IP 已被临时封禁",
			})
			c.Abort()
			return
		}

		// 公开端点直接放行
		if path == envCfg.HealthCheckPath {
			c.Next()
			return
		}

		// 只保护管理 API
		if !strings.HasPrefix(path, "/api") {
			c.Next()
			return
		}

		providedKey := getAccessKey(c)
		timestamp := time.Now().Format(time.RFC3339)

		if secureCompare(providedKey, envCfg.GateAccessKey) {
			// 认证成功，清除失败记录
			if failureLimiter != nil {
				failureLimiter.ClearFailures(clientIP)
			}

			if envCfg.ShouldLog("info") {
				log.Printf("✅ [认证成功] IP: %s | Path: %s | Time: %s", clientIP, path, timestamp)
			}
			c.Next()
			return
		}

		// 认证失败，记录失败次数
		if failureLimiter != nil {
			failureLimiter.RecordFailure(clientIP)
		}

		reason := "密钥无效"
		if providedKey == "" {
			reason = "密钥缺失"
		}
		log.Printf("🔒 [认证失败] IP: %s | Path: %s | Time: %s | Reason: %s",
			clientIP, path, timestamp, reason)

		c.JSON(401, gin.H{
			"error":   "Unauthorized",
			"message": "Invalid or missing access key",
		})
		c.Abort()
	}
}
