package http_api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// requireRunAuth admits requests that carry the scheduler token or the API
// bearer token. Both checks run in constant time.
func (s *HTTPServer) requireRunAuth(c *gin.Context) {
	if tokenMatches(c.GetHeader("X-Scheduler-Token"), s.config.SchedulerToken) {
		c.Next()
		return
	}
	if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		if tokenMatches(bearer, s.config.APIBearerToken) {
			c.Next()
			return
		}
	}

	s.logger.Warn("Rejected settlement API request", "path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "missing or invalid credentials",
	})
}

// tokenMatches reports whether the presented token equals the configured
// one. A token left unconfigured never matches anything.
func tokenMatches(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
