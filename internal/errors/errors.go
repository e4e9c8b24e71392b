package errors

import (
	"errors"
	"fmt"
)

// Common error types for the link server
var (
	// Session credential errors
	ErrNoCredential      = errors.New("no credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrForbidden         = errors.New("action forbidden")

	// User errors
	ErrInvalidLogin = errors.New("invalid email or password")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// Handshake errors
	ErrAuthenticationRequired    = errors.New("authentication required")
	ErrStateMismatch             = errors.New("state mismatch")
	ErrInvalidAuthorizationGrant = errors.New("invalid authorization grant")

	// Token lifecycle errors
	ErrNotLinked           = errors.New("provider account not linked")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")

	// Storage errors
	ErrPersistence = errors.New("persistence failure")
)

// ProviderError is returned when the provider answers a token request with a
// failure. Kind is one of ErrInvalidAuthorizationGrant, ErrRefreshFailed or
// ErrProviderUnavailable. The provider's response body is never kept.
type ProviderError struct {
	Kind       error
	StatusCode int    // HTTP status returned by the provider, 0 if no response
	Code       string // OAuth2 error code, e.g. "invalid_grant"
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: provider status %d (%s)", e.Kind, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: provider status %d", e.Kind, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
