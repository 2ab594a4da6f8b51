package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
)

// Recovery turns a panic into a 500 envelope and logs the stack.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(
					logger.String("request_id", httputil.GetRequestID(c)),
					logger.String("panic", fmt.Sprintf("%v", r)),
					logger.String("stack", string(debug.Stack())),
				).Error("Panic recovered")

				httputil.ErrorResponse(c, apperrors.ErrInternal)
			}
		}()

		c.Next()
	}
}
