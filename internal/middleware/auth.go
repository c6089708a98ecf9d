package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/auditctx"
	iauth "github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

const (
	CtxIdentityKey  = "authIdentity"
	CtxUserIDKey    = "userID"
	CtxRequestIDKey = "requestID"
)

// Auth resolves the bearer token into the caller identity. Requests without a
// valid token are rejected with 401.
func Auth(verifier *iauth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		identity, err := verifier.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxIdentityKey, identity)
		c.Set(CtxUserIDKey, identity.UserID)

		// Ledger entries recorded during the request inherit its origin.
		ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    identity.UserID,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: c.GetString(CtxRequestIDKey),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// IdentityFromContext returns the identity stored by Auth.
func IdentityFromContext(c *gin.Context) (*iauth.Identity, bool) {
	value, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*iauth.Identity)
	return identity, ok && identity != nil
}
