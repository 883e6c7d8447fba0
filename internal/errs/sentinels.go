// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrValidation indicates malformed input or a missing required field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad or consumed join token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authorization failure (licensing mismatch, access denied).
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a uniqueness or double-booking conflict.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates the operation is not valid for the current visit/token status.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream indicates a signing backend or session provider failure.
	ErrUpstream = errors.New("upstream failure")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., short code taken).
	ErrAlreadyExists = errors.New("already exists")
)
