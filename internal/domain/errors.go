package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"       // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"  // Authentication required
	EFORBIDDEN    = "forbidden"     // Permission denied
	ENOTFOUND     = "not_found"     // Resource not found
	ECONFLICT     = "conflict"      // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"    // Rate limit exceeded
	EINTERNAL     = "internal"      // Internal server error
	ENOTIMPL      = "not_impl"      // Not implemented
	EPAYMENT      = "payment"       // Payment required
	EUPSTREAM     = "upstream"      // Generation provider failed
	EBANNED       = "banned"        // Account suspended
	EPLANREQUIRED = "plan_required" // Feature needs a higher tier
	ELIMITREACHED = "limit_reached" // Monthly quota exhausted
)

// ErrStorage marks failures of the usage store. A storage failure is never a
// grant and never a denial; callers surface it as an internal error.
var ErrStorage = errors.New("usage storage failure")

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.check_and_consume")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// StorageFailure wraps a usage store error so that IsStorageFailure reports
// true for it. The code is EINTERNAL.
func StorageFailure(err error, op string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: "usage storage unavailable",
		Err:     fmt.Errorf("%w: %w", ErrStorage, err),
	}
}

// IsStorageFailure reports whether err came from the usage store.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorage)
}

// Upstream creates an error for a failed call to the generation provider.
func Upstream(err error, op string) *Error {
	return &Error{
		Code:    EUPSTREAM,
		Op:      op,
		Message: "Content generation failed. Please try again.",
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}
