package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"warranty-proxy-service/internal/metrics"
)

// Instrument counts served requests by route template.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
	}
}
