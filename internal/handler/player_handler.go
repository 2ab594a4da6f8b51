package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/player"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/pkg/httputil"
)

// PlayerHandler drives the per-device playback state machine.
type PlayerHandler struct {
	players *service.PlayerService
}

func NewPlayerHandler(players *service.PlayerService) *PlayerHandler {
	return &PlayerHandler{players: players}
}

type playerAction func(ctx context.Context, sess *session.Session) (player.State, error)

func (h *PlayerHandler) respond(c *gin.Context, action playerAction) {
	st, err := action(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, st)
}

// bindValue binds {"value": n}. A pointer keeps zero distinguishable from
// missing.
func bindValue(c *gin.Context) (float64, bool) {
	var req struct {
		Value *float64 `json:"value" binding:"required"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return 0, false
	}
	return *req.Value, true
}

func (h *PlayerHandler) State(c *gin.Context) {
	h.respond(c, h.players.State)
}

func (h *PlayerHandler) History(c *gin.Context) {
	history, err := h.players.History(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, history)
}

// SetQueue replaces the visible queue with the catalogue listing for the
// given filter.
func (h *PlayerHandler) SetQueue(c *gin.Context) {
	var filter domain.SongFilter
	if err := httputil.BindAndValidate(c, &filter); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.SetQueue(ctx, sess, filter)
	})
}

func (h *PlayerHandler) Select(c *gin.Context) {
	var req struct {
		SongID string `json:"song_id" binding:"required"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.SelectSong(ctx, sess, req.SongID)
	})
}

func (h *PlayerHandler) Skip(c *gin.Context) {
	var req struct {
		Direction int `json:"direction" binding:"required"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.Skip(ctx, sess, req.Direction)
	})
}

func (h *PlayerHandler) Ended(c *gin.Context) {
	h.respond(c, h.players.TrackEnded)
}

func (h *PlayerHandler) Loaded(c *gin.Context) {
	v, ok := bindValue(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.Loaded(ctx, sess, v)
	})
}

func (h *PlayerHandler) Position(c *gin.Context) {
	v, ok := bindValue(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.Position(ctx, sess, v)
	})
}

func (h *PlayerHandler) Toggle(c *gin.Context) {
	h.respond(c, h.players.Toggle)
}

// Seek takes a fraction of the duration in [0,1].
func (h *PlayerHandler) Seek(c *gin.Context) {
	v, ok := bindValue(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.Seek(ctx, sess, v)
	})
}

func (h *PlayerHandler) Volume(c *gin.Context) {
	v, ok := bindValue(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context, sess *session.Session) (player.State, error) {
		return h.players.SetVolume(ctx, sess, v)
	})
}

func (h *PlayerHandler) Mute(c *gin.Context) {
	h.respond(c, h.players.ToggleMute)
}
