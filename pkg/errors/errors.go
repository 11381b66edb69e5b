package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Failure categories shared by the chat pipeline. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	// ErrInvalidCredential covers unknown, inactive or expired keys and suspended clients.
	ErrInvalidCredential = stderrors.New("invalid credential")
	// ErrRateLimited is returned when a credential exhausted its per-minute window.
	ErrRateLimited = stderrors.New("rate limit exceeded")
	// ErrUpstreamUnavailable covers the embedding, vector and generation services.
	ErrUpstreamUnavailable = stderrors.New("upstream unavailable")
	// ErrPersistence marks relational store failures.
	ErrPersistence = stderrors.New("persistence failure")
	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = stderrors.New("invalid input")
	// ErrNotFound marks a missing admin resource.
	ErrNotFound = stderrors.New("not found")
	// ErrConflict marks a write that collides with existing state.
	ErrConflict = stderrors.New("conflict")
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Err        error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(code string, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(code string, message string) *AppError {
	return NewError(http.StatusForbidden, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(code string, message string) *AppError {
	return NewError(http.StatusServiceUnavailable, code, message)
}

// Is reports whether err carries an AppError with the same code as target.
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == target.Code
}
