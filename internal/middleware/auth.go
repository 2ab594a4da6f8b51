// Package middleware holds the gin middleware of the HTTP API.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/session"
	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
}

// Auth requires a valid token and puts the session on the request context.
func Auth(authn Authenticator, log logger.Logger) gin.HandlerFunc {
	return authenticate(authn, log, true)
}

// OptionalAuth attaches the session when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth(authn Authenticator, log logger.Logger) gin.HandlerFunc {
	return authenticate(authn, log, false)
}

func authenticate(authn Authenticator, log logger.Logger, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			if required {
				httputil.ErrorResponse(c, apperrors.ErrUnauthenticated)
				return
			}
			c.Next()
			return
		}

		sess, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.WithContext(c.Request.Context()).Debug("token rejected",
				logger.String("path", c.Request.URL.Path),
				logger.Error(err),
			)
			if required {
				httputil.ErrorResponse(c, apperrors.ErrUnauthenticated.WithError(err))
				return
			}
			c.Next()
			return
		}

		ctx := session.WithContext(c.Request.Context(), sess)
		ctx = logger.WithUserID(ctx, sess.UserID)
		ctx = logger.WithSessionID(ctx, sess.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(UserIDKey, sess.UserID)

		c.Next()
	}
}

// BearerToken reads the token from the Authorization header, falling back
// to the token query parameter used by WebSocket clients.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// Session returns the session attached by Auth, or nil.
func Session(c *gin.Context) *session.Session {
	return session.FromContext(c.Request.Context())
}
