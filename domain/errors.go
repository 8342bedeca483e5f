package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeInvalid              ErrorCode = "INVALID"
	ErrCodeConflict             ErrorCode = "CONFLICT"
	ErrCodeForbidden            ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrCodeConfigurationMissing ErrorCode = "CONFIGURATION_MISSING"
	ErrCodeInternal             ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two domain errors by code and message so wrapped sentinels
// compare equal to the sentinel itself.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Invalidf builds an INVALID error with a formatted reason.
func Invalidf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeInvalid, fmt.Sprintf(format, args...))
}

// Storage wraps an opaque store error so it surfaces as a generic failure.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return err
	}
	return WrapError(ErrCodeInternal, op, err)
}

// Common domain errors.
var (
	ErrBusinessNotFound     = NewError(ErrCodeNotFound, "business not found")
	ErrDepartmentNotFound   = NewError(ErrCodeNotFound, "department not found")
	ErrUserNotFound         = NewError(ErrCodeNotFound, "user not found")
	ErrSessionNotFound      = NewError(ErrCodeNotFound, "session not found")
	ErrConversationNotFound = NewError(ErrCodeNotFound, "conversation not found")

	// ErrNotFoundOrForbidden is returned when a record is absent or outside the
	// caller's scope. The two cases are deliberately indistinguishable.
	ErrNotFoundOrForbidden = NewError(ErrCodeNotFound, "conversation not found or access denied")

	ErrConversationClosed = NewError(ErrCodeConflict, "conversation is closed")
	ErrFallbackMissing    = NewError(ErrCodeConfigurationMissing, "fallback department missing")
	ErrUnauthorized       = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden          = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload     = NewError(ErrCodeInvalid, "invalid payload")
	ErrEmptyContent       = NewError(ErrCodeInvalid, "message content required")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
