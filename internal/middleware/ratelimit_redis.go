package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/org-management/org-service/internal/api/response"
)

// RedisRateLimitMiddleware enforces cfg through a Redis-backed GCRA limiter so
// that every replica draws from the same budget. Keys are namespaced by prefix.
// When Redis is unreachable the request is let through and a warning logged.
func RedisRateLimitMiddleware(limiter *redis_rate.Limiter, cfg RateLimitConfig, prefix string) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   cfg.RequestsPerMinute,
		Burst:  cfg.BurstSize,
		Period: time.Minute,
	}

	return func(c *gin.Context) {
		key := prefix + getRateLimitKey(c)

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retry := max(int(math.Ceil(res.RetryAfter.Seconds())), 1)
			c.Header("Retry-After", strconv.Itoa(retry))
			response.Abort(c, http.StatusTooManyRequests, "Rate limit exceeded", gin.H{"retry_after": retry})
			return
		}

		c.Next()
	}
}
