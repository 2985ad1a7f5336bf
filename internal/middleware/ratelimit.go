package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Limiter decides per client key whether a request may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
