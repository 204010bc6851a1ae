package model

import (
	"errors"
	"strings"
)

var (
	// Identity related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")

	// Every authentication failure wraps ErrUnauthorized. Role denials are
	// answered by middleware.RequireRole.
	ErrUnauthorized = errors.New("unauthorized")

	// Reasons behind ErrUnauthorized. Logged, never sent to clients.
	ErrMissingToken    = errors.New("missing token")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenIDMismatch = errors.New("token session id mismatch")
	ErrRotationLost    = errors.New("rotation lost to concurrent refresh")

	// Store errors
	ErrSessionConflict = errors.New("session token already stored")
	ErrUnavailable     = errors.New("store unavailable")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

// ConflictError reports which unique identity fields are already taken.
type ConflictError struct {
	Fields []string
}

func (e *ConflictError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "identity already exists"
	}
	return strings.Join(e.Fields, " and ") + " already in use"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Unauthorized wraps a reason so callers can match both ErrUnauthorized and the reason.
func Unauthorized(reason error) error {
	return &authError{reason: reason}
}

type authError struct {
	reason error
}

func (e *authError) Error() string {
	return "unauthorized: " + e.reason.Error()
}

func (e *authError) Unwrap() []error {
	return []error{ErrUnauthorized, e.reason}
}

// UnauthorizedReason returns a short machine label for logs and metrics.
func UnauthorizedReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrTokenExpired):
		return "expired_token"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrTokenIDMismatch):
		return "token_id_mismatch"
	case errors.Is(err, ErrRotationLost):
		return "rotation_lost"
	default:
		return "unauthorized"
	}
}
