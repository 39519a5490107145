package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTerminalState       = errors.New("terminal state violation")
	ErrRetryable           = errors.New("retryable")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail sets a single detail key
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// ValidationField is a single-field validation error whose message is the field message.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{field: message},
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		StatusCode: http.StatusUnauthorized,
	}
}

// QuotaExceeded reports a request above its policy ceiling.
func QuotaExceeded(message, ceiling, requested, rule string) *AppError {
	return &AppError{
		Err:        ErrQuotaExceeded,
		Code:       "QUOTA_EXCEEDED",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"ceiling":   ceiling,
			"requested": requested,
			"rule":      rule,
		},
	}
}

// InsufficientStock reports that a source tier cannot cover a movement.
func InsufficientStock(message, available, requested, shortfall string) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    message,
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"available": available,
			"requested": requested,
			"shortfall": shortfall,
		},
	}
}

// InsufficientBalance reports a farmer deduction above the remaining balance.
func InsufficientBalance(message, available, requested, shortfall string) *AppError {
	return &AppError{
		Err:        ErrInsufficientBalance,
		Code:       "INSUFFICIENT_BALANCE",
		Message:    message,
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"available": available,
			"requested": requested,
			"shortfall": shortfall,
		},
	}
}

// TerminalState reports a transition the request's current status forbids.
func TerminalState(status, target string) *AppError {
	return &AppError{
		Err:        ErrTerminalState,
		Code:       "TERMINAL_STATE",
		Message:    fmt.Sprintf("cannot move request from %s to %s", status, target),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"status": status,
			"target": target,
		},
	}
}

// Retryable wraps a transient database failure (lock timeout, deadlock).
func Retryable(err error, reason string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrRetryable, err),
		Code:       "RETRYABLE",
		Message:    "the operation could not acquire its locks in time, retry later",
		StatusCode: http.StatusServiceUnavailable,
		Details:    map[string]string{"reason": reason},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AppError code of err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
