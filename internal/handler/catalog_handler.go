package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// CatalogHandler serves song listings and comments.
type CatalogHandler struct {
	catalog  *service.CatalogService
	comments *service.CommentService
}

func NewCatalogHandler(catalog *service.CatalogService, comments *service.CommentService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, comments: comments}
}

// Songs lists songs for ?tab=, ?q= and ?playlist_id=.
func (h *CatalogHandler) Songs(c *gin.Context) {
	var filter domain.SongFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		handleError(c, domain.NewValidationError(err.Error()))
		return
	}
	songs, err := h.catalog.Songs(c.Request.Context(), middleware.Session(c), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, songs)
}

// ArtistSongs lists the calling artist's own songs, newest first.
func (h *CatalogHandler) ArtistSongs(c *gin.Context) {
	sess := middleware.Session(c)
	if sess == nil {
		handleError(c, domain.ErrUnauthenticated)
		return
	}
	songs, err := h.catalog.ArtistSongs(c.Request.Context(), sess.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, songs)
}

// Comments lists a song's comments, oldest first.
func (h *CatalogHandler) Comments(c *gin.Context) {
	comments, err := h.comments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, comments)
}

// PostComment adds a comment to a song.
func (h *CatalogHandler) PostComment(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := httputil.BindAndValidate(c, &req); err != nil {
		httputil.ErrorResponse(c, err)
		return
	}
	comment, err := h.comments.Post(c.Request.Context(), middleware.Session(c), c.Param("id"), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.CreatedResponse(c, comment)
}
