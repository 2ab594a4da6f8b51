package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// RelationHandler serves likes, favourites and follows.
type RelationHandler struct {
	relations *service.RelationService
}

func NewRelationHandler(relations *service.RelationService) *RelationHandler {
	return &RelationHandler{relations: relations}
}

// Like toggles a like on the song.
func (h *RelationHandler) Like(c *gin.Context) {
	h.toggle(c, domain.RelationLike)
}

// Favourite toggles a favourite on the song.
func (h *RelationHandler) Favourite(c *gin.Context) {
	h.toggle(c, domain.RelationFavourite)
}

// Follow toggles a follow on the artist.
func (h *RelationHandler) Follow(c *gin.Context) {
	h.toggle(c, domain.RelationFollow)
}

func (h *RelationHandler) toggle(c *gin.Context, rel domain.Relation) {
	res, err := h.relations.Toggle(c.Request.Context(), rel, middleware.Session(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, res)
}

// Liked lists the songs the caller likes.
func (h *RelationHandler) Liked(c *gin.Context) {
	songs, err := h.relations.Liked(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, songs)
}

// Favourites lists the caller's favourite songs.
func (h *RelationHandler) Favourites(c *gin.Context) {
	songs, err := h.relations.Favourites(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, songs)
}

// Following lists the artists the caller follows.
func (h *RelationHandler) Following(c *gin.Context) {
	follows, err := h.relations.Following(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, follows)
}
