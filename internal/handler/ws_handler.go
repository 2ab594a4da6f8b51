package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/internal/ws"
	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
)

// WSHandler upgrades GET /ws?topic= and streams snapshots of that topic.
type WSHandler struct {
	streams  *service.StreamService
	manager  *ws.Manager
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewWSHandler creates a WSHandler. An empty origins list accepts any
// origin.
func NewWSHandler(streams *service.StreamService, manager *ws.Manager, origins []string, log logger.Logger) *WSHandler {
	return &WSHandler{
		streams: streams,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		log: log,
	}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(origins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket authorizes the topic before upgrading so that refusals
// are ordinary JSON errors.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	sess := middleware.Session(c)
	feed, err := h.streams.Feed(sess, c.Query("topic"))
	if err != nil {
		handleError(c, err)
		return
	}
	if h.manager.GetLimiter().Available() <= 0 {
		httputil.ErrorResponse(c, apperrors.New("CONNECTION_LIMIT", "too many open connections", http.StatusServiceUnavailable))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	wsConn := ws.NewConnection(uuid.New().String(), sess.UserID, sess.ID, feed.Topic(), conn, h.manager)
	if err := h.manager.Serve(wsConn, feed); err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		h.log.WithContext(c.Request.Context()).Info("websocket refused",
			logger.String("topic", feed.Topic()), logger.Error(err))
	}
}
