package server

import (
	"context"
	"errors"
	"net/http"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/sessions"
	"github.com/jrsteele09/go-spotify-link/token"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified session claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the session claims placed by RequireSession or
// OptionalSession.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok && claims != nil
}

// RequireSession verifies the request's session credential and rejects the
// request when it is absent or invalid.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.authenticate(r)
			if err != nil {
				writeAuthFailure(w, err)
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
		}
	}
}

// OptionalSession attaches claims when a valid session is present and
// otherwise passes the request through untouched.
func (s *Server) OptionalSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.authenticate(r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("no usable session")
				next(w, r)
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
		}
	}
}

// RequireAdmin must follow RequireSession.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !claims.IsAdmin {
				writeAuthFailure(w, apperr.ErrForbidden)
				return
			}
			next(w, r)
		}
	}
}

func (s *Server) authenticate(r *http.Request) (*token.Claims, error) {
	raw, err := sessions.Extract(r)
	if err != nil {
		return nil, err
	}
	return s.deps.Sessions.Verify(r.Context(), raw)
}

func writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNoCredential):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"auth":  "Failed. No Token",
			"error": "no_credential",
		})
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"auth":    "Failed",
			"message": "Action Forbidden",
			"error":   "forbidden",
		})
	default:
		writeJSON(w, http.StatusForbidden, map[string]string{
			"auth":    "Failed",
			"message": "Invalid or expired credential",
			"error":   "invalid_credential",
		})
	}
}
