package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrValidation marks caller input that can never succeed on retry.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedScope is returned when a strategy family does not handle the requested scope.
	ErrUnsupportedScope = errors.New("unsupported scope")
)
