package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pg-defence-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping label cardinality
// bounded.
const unmatchedRoute = "unmatched"

// Metrics records request duration and status per route template.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
