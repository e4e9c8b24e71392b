package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-spotify-link/auth"
	"github.com/jrsteele09/go-spotify-link/sessions"
)

// AuthorizeHandler starts the handshake and sends the user agent to the
// provider's consent page.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())

		store := sessions.NewStateCookie(w, r, s.cookie)
		target, err := s.deps.Links.BeginAuthorization(r.Context(), claims.IdentityID(), store)
		if err != nil {
			writeError(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// CallbackHandler completes the handshake and returns the user agent to the
// application. The outcome travels in the URL fragment so the tokens never
// reach a server log through a query string.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cb := auth.Callback{
			Code:  q.Get("code"),
			State: q.Get("state"),
			Error: q.Get("error"),
		}
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			cb.IdentityID = claims.IdentityID()
		}

		store := sessions.NewStateCookie(w, r, s.cookie)
		state, err := s.deps.Links.CompleteAuthorization(r.Context(), cb, store)

		fragment := url.Values{}
		if err != nil {
			_, reason := errorReason(err)
			fragment.Set("error", reason)
		} else {
			fragment.Set("access_token", state.AccessToken)
			fragment.Set("refresh_token", state.RefreshToken)
			fragment.Set("expires_in", strconv.Itoa(s.expiresIn(state.ExpiresAt)))
			fragment.Set("message", "Spotify linked successfully")
		}
		http.Redirect(w, r, s.config.GetAppRedirectURL()+"#"+fragment.Encode(), http.StatusFound)
	}
}

// RefreshTokenHandler returns a usable provider access token for the caller,
// refreshing it first when it has expired.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())

		state, err := s.deps.Tokens.EnsureFresh(r.Context(), claims.IdentityID())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":      "Spotify token is valid",
			"access_token": state.AccessToken,
			"expires_at":   state.ExpiresAt.UTC().Format(time.RFC3339),
			"expires_in":   s.expiresIn(state.ExpiresAt),
		})
	}
}

// expiresIn is the whole number of seconds left before expiresAt, never
// negative.
func (s *Server) expiresIn(expiresAt time.Time) int {
	left := int(expiresAt.Sub(s.nowFunc()) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}
