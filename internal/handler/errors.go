package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/internal/domain"
	"github.com/dnspotify/server/internal/middleware"
	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
)

// handleError maps domain errors to API errors. Domain messages reach the
// client verbatim; anything unrecognised becomes INTERNAL.
func handleError(c *gin.Context, err error) {
	httputil.ErrorResponse(c, toAppError(c, err))
}

func toAppError(c *gin.Context, err error) *apperrors.Error {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	msg := err.Error()

	switch {
	// 401
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.ErrUnauthenticated.WithError(err)

	// 403
	case errors.Is(err, domain.ErrRoleMismatch):
		e := apperrors.ErrRoleMismatch.WithError(err)
		if sess := middleware.Session(c); sess != nil {
			e = e.WithDetails(gin.H{"redirect": sess.Role.Home()})
		}
		return e
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ErrForbidden.WithError(err)

	// 404
	case errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrSongNotFound),
		errors.Is(err, domain.ErrAlbumNotFound),
		errors.Is(err, domain.ErrArtistNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrPlaylistNotFound),
		errors.Is(err, domain.ErrCredentialNotFound):
		return apperrors.ErrNotFound.WithMessage(msg).WithError(err)

	// 400
	case errors.Is(err, domain.ErrValidation):
		return apperrors.ErrValidationFailed.WithMessage(msg).WithError(err)

	// 429
	case errors.Is(err, domain.ErrRateLimited):
		return apperrors.ErrRateLimited.WithMessage(msg).WithError(err)

	// 502
	case errors.Is(err, domain.ErrPartialUpload):
		return apperrors.ErrPartialUploadFailure.WithMessage(msg).WithError(err)
	case errors.Is(err, domain.ErrRemoteWrite):
		return apperrors.ErrRemoteWriteFailure.WithMessage(msg).WithError(err)

	default:
		return apperrors.ErrInternal.WithError(err)
	}
}

// handlePartial reports a publish that stopped part way. When something
// landed the status is 207 and the result is returned as details.
func handlePartial(c *gin.Context, err error, landed bool, result any) {
	e := toAppError(c, err)
	if landed {
		e = apperrors.Wrap(err, apperrors.ErrCodePartialUploadFailure, e.Message, http.StatusMultiStatus)
	}
	httputil.ErrorResponse(c, e.WithDetails(result))
}
