package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates a new AppError with a formatted message and no cause
func Newf(code, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// HasCode reports whether any error in err's chain is an AppError with the
// given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes
//
// Only SESSION_NOT_FOUND, QUERY_NOT_FOUND, SESSION_ALREADY_ACTIVE,
// DEPENDENCY_START_FAILED and INVALID_CONFIG surface to callers as failed
// operations. Stop, cache and callback failures are logged at the point of
// occurrence and swallowed so that shutdown always completes and caching
// never breaks recording.
const (
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeQueryNotFound   = "QUERY_NOT_FOUND"
	ErrCodeSessionActive   = "SESSION_ALREADY_ACTIVE"
	ErrCodeDependencyStart = "DEPENDENCY_START_FAILED"
	ErrCodeDependencyStop  = "DEPENDENCY_STOP_FAILED"
	ErrCodeCacheWrite      = "CACHE_WRITE_FAILED"
	ErrCodeCallback        = "CALLBACK_FAILED"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
)
