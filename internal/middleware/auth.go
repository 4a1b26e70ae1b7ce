package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Context keys set by the middleware chain.
const (
	PrincipalKey = "principal"
	UserIDKey    = "userID"
	RequestIDKey = "request_id"
)

// Authenticator verifies a raw access token.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Principal, error)
}

// AuthMiddleware resolves the bearer token from the Authorization header or
// cookies and stores the verified principal on the gin context.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authn.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
		if err != nil {
			observability.IncAuthFailure("http", errs.Code(err))
			status := errs.Status(err)
			c.AbortWithStatusJSON(status, models.APIResponse{Code: status, Message: errs.Message(err)})
			return
		}

		c.Set(PrincipalKey, p)
		c.Set(UserIDKey, p.UserID)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	val, ok := c.Get(PrincipalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}
