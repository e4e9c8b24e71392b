package server

import (
	"encoding/json"
	"errors"
	"net/http"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]string{
		"error":   reason,
		"message": message,
	})
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrapf(apperr.ErrInvalidRequest, "malformed body: %v", err)
	}
	return nil
}

// errorReason maps a domain error to an HTTP status and a stable reason code.
func errorReason(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperr.ErrInvalidLogin):
		return http.StatusUnauthorized, "invalid_login"
	case errors.Is(err, apperr.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, apperr.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "authentication_required"
	case errors.Is(err, apperr.ErrStateMismatch):
		return http.StatusBadRequest, "state_mismatch"
	case errors.Is(err, apperr.ErrNotLinked):
		return http.StatusBadRequest, "not_linked"
	case errors.Is(err, apperr.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, apperr.ErrInvalidAuthorizationGrant):
		return providerStatus(err), "invalid_grant"
	case errors.Is(err, apperr.ErrRefreshFailed):
		return providerStatus(err), "refresh_failed"
	case errors.Is(err, apperr.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// providerStatus relays the provider's 4xx status. A provider 401 concerns
// our client credentials rather than the caller's, so it is reported as 502.
func providerStatus(err error) int {
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	if pe.StatusCode == http.StatusUnauthorized || pe.StatusCode < 400 || pe.StatusCode >= 500 {
		return http.StatusBadGateway
	}
	return pe.StatusCode
}

var errorMessages = map[string]string{
	"invalid_request":         "The request was malformed",
	"invalid_login":           "Invalid email or password",
	"user_exists":             "An account with that email already exists",
	"authentication_required": "Sign in before linking Spotify",
	"state_mismatch":          "Authorization state did not match",
	"not_linked":              "No Spotify account is linked",
	"provider_unavailable":    "Spotify is unavailable, try again later",
	"invalid_grant":           "Spotify rejected the authorization",
	"refresh_failed":          "Spotify rejected the refresh token, link the account again",
	"persistence_failed":      "Tokens could not be stored, try again",
	"internal_error":          "Internal server error",
}

func writeError(w http.ResponseWriter, err error) {
	status, reason := errorReason(err)
	if status >= 500 {
		log.Error().Err(err).Str("reason", reason).Msg("request failed")
	}
	writeJSONError(w, status, reason, errorMessages[reason])
}
