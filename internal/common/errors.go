// Package common defines shared constants and sentinel errors used across
// client and server layers of CareVault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorConflict     = errors.New("conflict")

	// Share/invite grant lifecycle errors. A consumed or unknown code
	// surfaces as ErrorNotFound; a code whose grant outlived its
	// expiry surfaces as ErrorExpired.
	ErrorExpired = errors.New("expired")

	// Validation errors.
	ErrorInvalidRole     = errors.New("invalid role")
	ErrorMissingPayload  = errors.New("missing encrypted payload")
	ErrorNoPublicKey     = errors.New("no registered public key")
	ErrorInvalidEnvelope = errors.New("invalid envelope")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
