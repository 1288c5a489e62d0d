package errors

import (
	"errors"
	"fmt"
)

// Standard error codes
const (
	ErrInvalidRequest      = 400
	ErrUnauthorized        = 401
	ErrForbidden           = 403
	ErrNotFound            = 404
	ErrConflict            = 409
	ErrInternalServerError = 500
	ErrServiceUnavailable  = 503

	// Engine-specific error codes (1000+)
	ErrInsufficientBalance = 1001
	ErrSessionNotFound     = 1002
	ErrSessionEnded        = 1003
	ErrDuplicateSession    = 1004
	ErrWalletUnavailable   = 1005
	ErrGameNotFound        = 1006
	ErrConfigError         = 1007
	ErrRedisError          = 1008
	ErrKafkaError          = 1009
	ErrGameLogicError      = 1010
)

// AppError represents a custom application error
type AppError struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	DebugMessage string `json:"debug_message,omitempty"`
	Err          error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.DebugMessage != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.DebugMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s [%v]", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithDebug creates a new AppError with a debug message
func NewWithDebug(code int, message string, debugMessage string) *AppError {
	return &AppError{
		Code:         code,
		Message:      message,
		DebugMessage: debugMessage,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts error code from an error
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServerError
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsInsufficientBalance reports whether err is an insufficient balance rejection.
func IsInsufficientBalance(err error) bool {
	return HasCode(err, ErrInsufficientBalance)
}

// IsRetryable reports whether the caller may retry the operation. Only wallet
// gateway outages qualify; validation errors never do.
func IsRetryable(err error) bool {
	return HasCode(err, ErrWalletUnavailable) || HasCode(err, ErrServiceUnavailable)
}

// HTTPStatusFromCode maps error codes to HTTP status codes
func HTTPStatusFromCode(code int) int {
	switch code {
	case ErrInvalidRequest:
		return 400
	case ErrUnauthorized:
		return 401
	case ErrForbidden:
		return 403
	case ErrNotFound:
		return 404
	case ErrConflict:
		return 409
	case ErrServiceUnavailable:
		return 503
	case ErrInsufficientBalance:
		return 400
	case ErrSessionNotFound:
		return 404
	case ErrSessionEnded:
		return 409
	case ErrDuplicateSession:
		return 409
	case ErrWalletUnavailable:
		return 502
	case ErrGameNotFound:
		return 404
	case ErrGameLogicError:
		return 400
	default:
		return 500
	}
}
