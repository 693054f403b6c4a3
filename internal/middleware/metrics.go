package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/org-management/org-service/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} for every request.
//
// The path label is the matched route template from c.FullPath(), so query
// strings (which carry organization names) never become label values.
// Unmatched requests use "<no-route>".
//
// Register it after gin.Recovery() so the status written by a recovered
// panic is captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
