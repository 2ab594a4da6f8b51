package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/guard"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

// Handlers groups every HTTP handler of the API. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Auth          *AuthHandler
	Relations     *RelationHandler
	Catalog       *CatalogHandler
	Player        *PlayerHandler
	Playlists     *PlaylistHandler
	Notifications *NotificationHandler
	Publish       *PublishHandler
	WS            *WSHandler
	Health        *HealthHandler
}

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Authenticator  middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Metrics        *telemetry.Metrics
	Tracer         trace.Tracer
	MetricsHandler http.Handler
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         logger.Logger
}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.L()
	}

	r := gin.New()
	r.Use(
		httputil.RequestIDMiddleware(),
		middleware.Recovery(log),
		middleware.Logging(log),
		middleware.Metrics(cfg.Metrics),
	)
	if cfg.Tracer != nil {
		r.Use(middleware.Tracing(cfg.Tracer))
	}
	r.Use(httputil.CORSMiddleware(cfg.AllowedOrigins), httputil.SecurityHeadersMiddleware())

	if h.Health != nil {
		r.GET("/health", h.Health.Health)
		r.GET("/ready", h.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.LimitIP())
	}

	// public
	if h.Auth != nil {
		auth := api.Group("/auth")
		{
			auth.POST("/signup", h.Auth.SignUp)
			auth.POST("/signin", h.Auth.SignIn)
			auth.POST("/federated", h.Auth.SignInFederated)
		}
		api.GET("/navigate", middleware.OptionalAuth(cfg.Authenticator, log), h.Auth.Navigate)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(cfg.Authenticator, log))
	if cfg.RateLimiter != nil {
		authed.Use(cfg.RateLimiter.LimitUser())
	}

	if h.Auth != nil {
		authed.POST("/auth/signout", h.Auth.SignOut)
		authed.GET("/me", h.Auth.Me)
		authed.PATCH("/me", h.Auth.UpdateMe)
		authed.PUT("/me/password", h.Auth.ChangePassword)
	}
	if h.Catalog != nil {
		authed.GET("/songs/:id/comments", h.Catalog.Comments)
		authed.POST("/songs/:id/comments", h.Catalog.PostComment)
	}
	if h.WS != nil {
		authed.GET("/ws", h.WS.HandleWebSocket)
	}

	listener := authed.Group("")
	listener.Use(guard.RequireRole(domain.RoleListener))
	registerListener(listener, h)

	artist := authed.Group("")
	artist.Use(guard.RequireRole(domain.RoleArtist))
	registerArtist(artist, h, cfg.MaxUploadBytes)

	return r
}

func registerListener(g *gin.RouterGroup, h Handlers) {
	if h.Catalog != nil {
		g.GET("/songs", h.Catalog.Songs)
	}
	if h.Relations != nil {
		g.POST("/songs/:id/like", h.Relations.Like)
		g.POST("/songs/:id/favourite", h.Relations.Favourite)
		g.POST("/artists/:id/follow", h.Relations.Follow)
		g.GET("/me/likes", h.Relations.Liked)
		g.GET("/me/favourites", h.Relations.Favourites)
		g.GET("/me/following", h.Relations.Following)
	}
	if h.Player != nil {
		g.GET("/player", h.Player.State)
		g.GET("/history", h.Player.History)
		p := g.Group("/player")
		{
			p.POST("/queue", h.Player.SetQueue)
			p.POST("/select", h.Player.Select)
			p.POST("/loaded", h.Player.Loaded)
			p.POST("/position", h.Player.Position)
			p.POST("/toggle", h.Player.Toggle)
			p.POST("/seek", h.Player.Seek)
			p.POST("/skip", h.Player.Skip)
			p.POST("/ended", h.Player.Ended)
			p.POST("/volume", h.Player.Volume)
			p.POST("/mute", h.Player.Mute)
		}
	}
	if h.Playlists != nil {
		pl := g.Group("/playlists")
		{
			pl.GET("", h.Playlists.ListPlaylists)
			pl.POST("", h.Playlists.CreatePlaylist)
			pl.GET("/:id", h.Playlists.GetPlaylist)
			pl.PATCH("/:id", h.Playlists.RenamePlaylist)
			pl.DELETE("/:id", h.Playlists.DeletePlaylist)
			pl.POST("/:id/songs", h.Playlists.AddSongToPlaylist)
			pl.DELETE("/:id/songs/:song_id", h.Playlists.RemoveSongFromPlaylist)
		}
	}
	if h.Notifications != nil {
		n := g.Group("/notifications")
		{
			n.GET("", h.Notifications.List)
			n.POST("/read-all", h.Notifications.MarkAllRead)
			n.POST("/:id/read", h.Notifications.MarkRead)
			n.DELETE("/:id", h.Notifications.Delete)
		}
	}
}

func registerArtist(g *gin.RouterGroup, h Handlers, maxUpload int64) {
	if h.Catalog != nil {
		g.GET("/artist/songs", h.Catalog.ArtistSongs)
	}
	if h.Publish == nil {
		return
	}
	pub := g.Group("/publish")
	pub.Use(limitBody(maxUpload))
	{
		pub.POST("/single", h.Publish.PublishSingle)
		pub.POST("/album", h.Publish.PublishAlbum)
	}
	g.DELETE("/songs/:id", h.Publish.DeleteSong)
	g.GET("/analytics", h.Publish.Analytics)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
