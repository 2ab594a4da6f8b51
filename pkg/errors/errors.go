// Package errors provides the structured error envelope shared by the API layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error represents a structured application error.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	HTTPStatus int         `json:"-"`
	Details    interface{} `json:"details,omitempty"`
	Err        error       `json:"-"` // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so predefined values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details interface{}) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithError returns a copy of e wrapping err.
func (e *Error) WithError(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy of e with a different user-facing message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// New creates a new Error.
func New(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with error code and message.
func Wrap(err error, code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes
const (
	ErrCodeInternal             = "INTERNAL"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeRoleMismatch         = "ROLE_MISMATCH"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeRemoteWriteFailure   = "REMOTE_WRITE_FAILURE"
	ErrCodePartialUploadFailure = "PARTIAL_UPLOAD_FAILURE"
	ErrCodeTokenInvalid         = "TOKEN_INVALID"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// Predefined errors. Use WithMessage/WithDetails/WithError to derive a variant;
// they copy, so these values are never mutated.
var (
	ErrInternal             = New(ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	ErrBadRequest           = New(ErrCodeBadRequest, "Bad request", http.StatusBadRequest)
	ErrUnauthenticated      = New(ErrCodeUnauthenticated, "Please sign in to continue", http.StatusUnauthorized)
	ErrValidationFailed     = New(ErrCodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrRoleMismatch         = New(ErrCodeRoleMismatch, "Access Denied", http.StatusForbidden)
	ErrForbidden            = New(ErrCodeForbidden, "Access forbidden", http.StatusForbidden)
	ErrNotFound             = New(ErrCodeNotFound, "Resource not found", http.StatusNotFound)
	ErrConflict             = New(ErrCodeConflict, "Resource conflict", http.StatusConflict)
	ErrRateLimited          = New(ErrCodeRateLimited, "Too many requests", http.StatusTooManyRequests)
	ErrRemoteWriteFailure   = New(ErrCodeRemoteWriteFailure, "Remote write failed", http.StatusBadGateway)
	ErrPartialUploadFailure = New(ErrCodePartialUploadFailure, "Upload partially completed", http.StatusBadGateway)
	ErrTokenInvalid         = New(ErrCodeTokenInvalid, "Invalid token", http.StatusUnauthorized)
	ErrTokenExpired         = New(ErrCodeTokenExpired, "Token has expired", http.StatusUnauthorized)
	ErrServiceUnavailable   = New(ErrCodeServiceUnavailable, "Service temporarily unavailable", http.StatusServiceUnavailable)
)

// IsError reports whether err is (or wraps) an *Error with the target's code.
func IsError(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return stderrors.Is(err, target)
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the HTTP status code for an error.
// If the error is not an *Error, returns 500.
func GetHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetCode returns the error code for an error.
// If the error is not an *Error, returns INTERNAL.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
