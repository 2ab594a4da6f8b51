package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the newest notifications and the unread count. ?limit=
// defaults to the service default.
func (h *NotificationHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			handleError(c, domain.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	sess := middleware.Session(c)
	items, err := h.notifications.List(ctx, sess, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, sess)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"items": items, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), middleware.Session(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"read": c.Param("id")})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"updated": n})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	if err := h.notifications.Delete(c.Request.Context(), middleware.Session(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"deleted": c.Param("id")})
}
