package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/services"
	"go.uber.org/zap"
)

// RateLimitRule is a fixed window limit applied per client IP
type RateLimitRule struct {
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

// RateLimit rejects clients that exceed rule with 429. Limiter errors let the
// request through.
func RateLimit(limiter services.RateLimiter, rule RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.Name + ":" + c.ClientIP()

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			observability.Logger().Warn("rate limiter failed, allowing request",
				zap.String("limiter", rule.Name),
				zap.Error(err))
			c.Next()
			return
		}

		resetSeconds := int(math.Ceil(result.ResetAfter.Seconds()))
		c.Header("RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("RateLimit-Reset", strconv.Itoa(resetSeconds))

		if !result.Allowed {
			observability.RateLimitRejections.WithLabelValues(rule.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(resetSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       rule.Message,
				"retry_after": resetSeconds,
			})
			return
		}

		c.Next()
	}
}
