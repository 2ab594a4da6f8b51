package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/pkg/httputil"
)

// maxMultipartMemory is how much of a release is buffered in memory before
// gin spills parts to temporary files.
const maxMultipartMemory = 32 << 20

// PublishHandler serves the artist dashboard: releases, deletes and analytics.
type PublishHandler struct {
	publish   *service.PublishService
	analytics *service.AnalyticsService
}

func NewPublishHandler(publish *service.PublishService, analytics *service.AnalyticsService) *PublishHandler {
	return &PublishHandler{publish: publish, analytics: analytics}
}

// PublishSingle accepts multipart fields title, cover and one audio file.
func (h *PublishHandler) PublishSingle(c *gin.Context) {
	h.handlePublish(c, domain.PublishSingle)
}

// PublishAlbum accepts multipart fields title, cover, audio (repeated) and
// optional track_title (repeated, by position).
func (h *PublishHandler) PublishAlbum(c *gin.Context) {
	h.handlePublish(c, domain.PublishAlbum)
}

func (h *PublishHandler) handlePublish(c *gin.Context, kind domain.PublishKind) {
	form, err := parseForm(c)
	if err != nil {
		handleError(c, err)
		return
	}
	defer form.RemoveAll()

	req, closeAll, err := publishRequest(kind, form)
	defer closeAll()
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := h.publish.Publish(c.Request.Context(), middleware.Session(c), req, nil)
	if err != nil {
		if result != nil {
			handlePartial(c, err, result.Album != nil || len(result.Songs) > 0, result)
			return
		}
		handleError(c, err)
		return
	}
	httputil.CreatedResponse(c, result)
}

func parseForm(c *gin.Context) (*multipart.Form, error) {
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, domain.NewValidationError("expected a multipart form: " + err.Error())
	}
	return c.Request.MultipartForm, nil
}

// publishRequest opens every file part. The returned func closes whatever
// was opened and is safe to call on error.
func publishRequest(kind domain.PublishKind, form *multipart.Form) (service.PublishRequest, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	open := func(fh *multipart.FileHeader) (*service.UploadFile, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		opened = append(opened, f)
		return &service.UploadFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		}, nil
	}

	req := service.PublishRequest{
		Kind:        kind,
		Title:       first(form.Value["title"]),
		TrackTitles: form.Value["track_title"],
	}
	if covers := form.File["cover"]; len(covers) > 0 {
		cover, err := open(covers[0])
		if err != nil {
			return req, closeAll, err
		}
		req.Cover = cover
	}
	for _, fh := range form.File["audio"] {
		f, err := open(fh)
		if err != nil {
			return req, closeAll, err
		}
		req.Audio = append(req.Audio, *f)
	}
	return req, closeAll, nil
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// DeleteSong removes one of the caller's songs.
func (h *PublishHandler) DeleteSong(c *gin.Context) {
	if err := h.publish.Delete(c.Request.Context(), middleware.Session(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"deleted": c.Param("id")})
}

// Analytics returns the caller's totals and per-song engagement.
func (h *PublishHandler) Analytics(c *gin.Context) {
	stats, err := h.analytics.Artist(c.Request.Context(), middleware.Session(c))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.SuccessResponse(c, stats)
}
