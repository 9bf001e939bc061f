// Package errors provides the structured error taxonomy shared by every
// framestack layer.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes the system distinguishes.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrOperationFailed  = errors.New("operation failed")
	ErrVersionConflict  = errors.New("version conflict")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidStatef wraps ErrInvalidState with a formatted reason.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Operationf wraps ErrOperationFailed around a lower-layer error.
func Operationf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrOperationFailed, fmt.Sprintf(format, args...), err)
}

// Is re-exports errors.Is so callers don't need two imports.
func Is(err, target error) bool { return errors.Is(err, target) }

// IsRetryable reports whether the error is likely transient and worth
// retrying. SQLite surfaces lock contention as SQLITE_BUSY / "database is
// locked"; those are the only store errors a retry can cure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
