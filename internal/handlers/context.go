package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/middleware"
	"github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// callerID returns the authenticated user id, writing a 401 when it is missing.
func callerID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
