package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// PlaylistHandler serves the caller's device-local playlists.
type PlaylistHandler struct {
	service *service.PlaylistService
}

// NewPlaylistHandler creates a PlaylistHandler.
func NewPlaylistHandler(service *service.PlaylistService) *PlaylistHandler {
	return &PlaylistHandler{
		service: service,
	}
}

type playlistNameRequest struct {
	Name string `json:"name"`
}

// CreatePlaylist creates an empty playlist.
func (h *PlaylistHandler) CreatePlaylist(c *gin.Context) {
	var req playlistNameRequest
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	playlist, err := h.service.CreatePlaylist(c.Request.Context(), middleware.Session(c), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.CreatedResponse(c, playlist)
}

// ListPlaylists lists the playlists stored for the caller's device.
func (h *PlaylistHandler) ListPlaylists(c *gin.Context) {
	playlists, err := h.service.ListPlaylists(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, playlists)
}

// GetPlaylist returns one playlist with its song snapshots.
func (h *PlaylistHandler) GetPlaylist(c *gin.Context) {
	playlist, err := h.service.GetPlaylist(c.Request.Context(), middleware.Session(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, playlist)
}

// RenamePlaylist renames a playlist.
func (h *PlaylistHandler) RenamePlaylist(c *gin.Context) {
	var req playlistNameRequest
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	playlist, err := h.service.RenamePlaylist(c.Request.Context(), middleware.Session(c), c.Param("id"), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, playlist)
}

// DeletePlaylist removes a playlist.
func (h *PlaylistHandler) DeletePlaylist(c *gin.Context) {
	if err := h.service.DeletePlaylist(c.Request.Context(), middleware.Session(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, gin.H{"deleted": c.Param("id")})
}

// AddSongToPlaylist appends a song snapshot.
func (h *PlaylistHandler) AddSongToPlaylist(c *gin.Context) {
	var req struct {
		SongID string `json:"song_id" binding:"required"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	playlist, err := h.service.AddSongToPlaylist(c.Request.Context(), middleware.Session(c), c.Param("id"), req.SongID)
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, playlist)
}

// RemoveSongFromPlaylist drops a song from a playlist.
func (h *PlaylistHandler) RemoveSongFromPlaylist(c *gin.Context) {
	playlist, err := h.service.RemoveSongFromPlaylist(c.Request.Context(), middleware.Session(c), c.Param("id"), c.Param("song_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	httputil.SuccessResponse(c, playlist)
}
