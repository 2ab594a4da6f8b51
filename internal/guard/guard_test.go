package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/session"
)

func TestEvaluate_Anonymous(t *testing.T) {
	for _, p := range []string{"/", "/signup-listener", "/login-listener", "/signup-artist", "/login-artist"} {
		assert.Equal(t, Decision{Allow: true}, Evaluate(nil, p), p)
	}
	assert.Equal(t, Decision{Redirect: "/"}, Evaluate(nil, "/dashboard-listener"))
	assert.Equal(t, Decision{Redirect: "/"}, Evaluate(nil, "/nowhere"))
}

func TestEvaluate_ArtistOnListenerPath(t *testing.T) {
	artist := &session.Session{UserID: "a1", Role: domain.RoleArtist}

	d := Evaluate(artist, "/favourites")
	assert.False(t, d.Allow)
	assert.Equal(t, "/dashboard-artist", d.Redirect)

	assert.True(t, Evaluate(artist, "/artist-upload").Allow)
	assert.Equal(t, "/dashboard-artist", Evaluate(artist, "/").Redirect)
}

func TestEvaluate_Listener(t *testing.T) {
	listener := &session.Session{UserID: "u1", Role: domain.RoleListener}

	assert.True(t, Evaluate(listener, "/player").Allow)
	assert.True(t, Evaluate(listener, "/playlists/?tab=mine").Allow)
	assert.Equal(t, "/dashboard-listener", Evaluate(listener, "/artist-analytics").Redirect)
	assert.Equal(t, "/dashboard-listener", Evaluate(listener, "/login-listener").Redirect)
	assert.Equal(t, "/dashboard-listener", Evaluate(listener, "/unknown").Redirect)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/", normalizePath("/"))
	assert.Equal(t, "/player", normalizePath("player"))
	assert.Equal(t, "/player", normalizePath("/player/#top"))
	assert.True(t, IsPublic("/login-artist?next=x"))
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(sess *session.Session) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if sess != nil {
				c.Request = c.Request.WithContext(session.WithContext(c.Request.Context(), sess))
			}
			c.Next()
		})
		r.GET("/artist", RequireRole(domain.RoleArtist), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	t.Run("match", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(&session.Session{Role: domain.RoleArtist}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/artist", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("mismatch", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(&session.Session{Role: domain.RoleListener}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/artist", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)

		var body struct {
			Error struct {
				Code    string            `json:"code"`
				Message string            `json:"message"`
				Details map[string]string `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ROLE_MISMATCH", body.Error.Code)
		assert.Equal(t, "Access Denied", body.Error.Message)
		assert.Equal(t, "/dashboard-listener", body.Error.Details["redirect"])
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/artist", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
