package errors

import (
	stderrors "errors"
	"net/http"
)

// Error codes returned to API callers.
const (
	CodeInvalidCredential   = "INVALID_CREDENTIAL"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// FromError converts any error to an AppError.
// AppErrors are returned as-is; the taxonomy sentinels map to their categorical
// responses; everything else becomes a generic internal error. Messages never
// carry the underlying cause.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var out *AppError
	switch {
	case stderrors.Is(err, ErrInvalidCredential):
		out = NewUnauthorizedError(CodeInvalidCredential, "Invalid or expired API key")
	case stderrors.Is(err, ErrRateLimited):
		out = NewTooManyRequestsError(CodeRateLimitExceeded, "Rate limit exceeded")
	case stderrors.Is(err, ErrUpstreamUnavailable):
		out = NewServiceUnavailableError(CodeUpstreamUnavailable, "The assistant is temporarily unavailable, please try again later")
	case stderrors.Is(err, ErrInvalidInput):
		out = NewBadRequestError(CodeInvalidInput, "Invalid request").WithDetails(err.Error())
	case stderrors.Is(err, ErrNotFound):
		out = NewNotFoundError(CodeNotFound, "Resource not found")
	case stderrors.Is(err, ErrConflict):
		out = NewConflictError(CodeConflict, "Resource already exists")
	default:
		out = NewInternalServerError(CodeInternal, "An internal error occurred")
	}
	out.Err = err
	return out
}

// GetStatusCode extracts the HTTP status code for err.
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).StatusCode
}

// GetErrorCode extracts the error code for err.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}
