// security.go
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// FrameAncestors lets the Shopify admin embed the warranty page.
const FrameAncestors = "frame-ancestors https://admin.shopify.com https://*.myshopify.com;"

func ContentSecurityPolicy() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", FrameAncestors)
		c.Next()
	}
}

// CORS answers preflight requests with 204. An empty allowed list accepts
// any origin; entries may use a leading "*." wildcard for the host part,
// e.g. https://*.myshopify.com.
func CORS(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(allowed, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	if slices.Contains(allowed, origin) {
		return true
	}
	for _, a := range allowed {
		scheme, host, ok := strings.Cut(a, "://*.")
		if !ok {
			continue
		}
		prefix := scheme + "://"
		if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, "."+host) {
			return true
		}
	}
	return false
}
