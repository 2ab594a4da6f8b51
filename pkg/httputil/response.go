// Package httputil provides the JSON envelope and common gin middleware.
package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/dnspotify/server/pkg/errors"
	"github.com/dnspotify/server/pkg/logger"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// Response represents a standard API response.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	RequestID string      `json:"request_id"`
}

// ErrorInfo represents error information in the response.
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse sends a 200 response.
func SuccessResponse(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// CreatedResponse sends a 201 response.
func CreatedResponse(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// JSON sends a successful envelope with the given status.
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success:   true,
		Data:      data,
		RequestID: GetRequestID(c),
	})
}

// ErrorResponse sends an error response. Errors that are not *errors.Error
// are reported as INTERNAL without leaking their text.
func ErrorResponse(c *gin.Context, err error) {
	ErrorResponseWithData(c, err, nil)
}

// ErrorResponseWithData sends an error envelope that still carries data,
// used when part of an operation landed before the failure.
func ErrorResponseWithData(c *gin.Context, err error, data interface{}) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.ErrInternal.WithError(err)
	}

	c.AbortWithStatusJSON(appErr.HTTPStatus, Response{
		Success: false,
		Data:    data,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		RequestID: GetRequestID(c),
	})
}

// GetRequestID retrieves or generates a request ID.
func GetRequestID(c *gin.Context) string {
	requestID := c.GetString(RequestIDKey)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return requestID
}

// RequestIDMiddleware injects a request ID into the gin and request contexts.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// CORSMiddleware sets CORS headers. An empty list or "*" allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-Device-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware sets security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")

		c.Next()
	}
}

// BindAndValidate binds a JSON body, mapping binding failures to VALIDATION_FAILED.
func BindAndValidate(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperrors.ErrValidationFailed.WithMessage("invalid request body").WithError(err)
	}
	return nil
}
