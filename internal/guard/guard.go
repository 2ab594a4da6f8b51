// Package guard decides where a session may navigate and rejects API calls
// made with the wrong role.
package guard

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
)

// Landing is where anonymous users are sent.
const Landing = "/"

var publicRoutes = map[string]bool{
	"/":                true,
	"/signup-listener": true,
	"/login-listener":  true,
	"/signup-artist":   true,
	"/login-artist":    true,
}

var roleRoutes = map[domain.Role]map[string]bool{
	domain.RoleListener: {
		"/dashboard-listener":    true,
		"/listener-dashboard":    true,
		"/edit-listener-profile": true,
		"/favourites":            true,
		"/playlists":             true,
		"/player":                true,
	},
	domain.RoleArtist: {
		"/dashboard-artist":    true,
		"/edit-artist-profile": true,
		"/artist-upload":       true,
		"/artist-analytics":    true,
	},
}

// Decision is the outcome of a navigation check. Redirect is set only when
// Allow is false.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

// Evaluate decides whether sess may view path. A nil session is anonymous.
func Evaluate(sess *session.Session, path string) Decision {
	path = normalizePath(path)
	if sess == nil {
		if publicRoutes[path] {
			return Decision{Allow: true}
		}
		return Decision{Redirect: Landing}
	}
	if roleRoutes[sess.Role][path] {
		return Decision{Allow: true}
	}
	return Decision{Redirect: sess.Role.Home()}
}

// IsPublic reports whether path is open to anonymous users.
func IsPublic(path string) bool {
	return publicRoutes[normalizePath(path)]
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// RequireRole rejects requests whose session role differs from role. It
// must run after the auth middleware.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c.Request.Context())
		if sess == nil {
			httputil.ErrorResponse(c, apperrors.ErrUnauthenticated)
			return
		}
		if sess.Role != role {
			httputil.ErrorResponse(c, apperrors.ErrRoleMismatch.WithDetails(gin.H{
				"required": string(role),
				"redirect": sess.Role.Home(),
			}))
			return
		}
		c.Next()
	}
}
