package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/logger"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

// RateLimit limits requests per (client, route) within a fixed window using store.
// Authenticated callers are keyed by user id, others by client IP. When the store
// fails the request is let through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		client := c.GetString(CtxUserIDKey)
		if client == "" {
			client = c.ClientIP()
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		key := "ratelimit:" + client + ":" + c.Request.Method + ":" + route

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetSeconds := int((ttl + time.Second - 1) / time.Second)

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(resetSeconds))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
