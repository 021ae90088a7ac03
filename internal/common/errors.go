// Package common defines the sentinel errors and shared constants used across
// the catalog layers. Callers should match these values with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Validation errors (malformed identifiers, out-of-range slot or status).
	ErrorValidation = errors.New("validation error")

	// ErrorSlotSaved is returned when a saved slot is targeted by an operation
	// that may only touch pre-final slots.
	ErrorSlotSaved = errors.New("slot is saved")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Image errors.
	ErrDecodeFailed = errors.New("image decode failed")

	// ErrArtifactCleanupFailed is only ever logged.
	ErrArtifactCleanupFailed = errors.New("artifact cleanup failed")
)

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrorConflict) || errors.Is(err, ErrorSlotSaved)
}
