package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnspotify/server/pkg/httputil"
	"github.com/dnspotify/server/pkg/logger"
)

// Logging logs one line per request. The level follows the status code.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("request_id", httputil.GetRequestID(c)),
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if query != "" && c.Query("token") == "" {
			fields = append(fields, logger.String("query", query))
		}
		if uid := c.GetString(UserIDKey); uid != "" {
			fields = append(fields, logger.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("errors", c.Errors.String()))
		}

		l := log.WithFields(fields...)
		switch {
		case status >= 500:
			l.Error("HTTP request error")
		case status >= 400:
			l.Warn("HTTP request warning")
		default:
			l.Info("HTTP request")
		}
	}
}
