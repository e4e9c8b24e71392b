// Package sessions carries session credentials and handshake state between
// the server and the user agent.
package sessions

import (
	"net/http"
	"strings"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
)

const (
	// CookieName holds the session credential.
	CookieName = "session_token"
	// StateCookieName holds the pending authorization state.
	StateCookieName = "spotify_auth_state"

	bearerPrefix = "bearer "
)

// CookieOptions controls cookie attributes. Secure is forced on for TLS or
// forwarded-https requests regardless of this setting.
type CookieOptions struct {
	Secure     bool
	SessionTTL time.Duration // zero gives a browser-session cookie
	StateTTL   time.Duration
}

// Extract returns the session credential carried by r. The Authorization
// header takes precedence over the cookie. A request carrying neither yields
// errors.ErrNoCredential; a malformed header yields
// errors.ErrInvalidCredential.
func Extract(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return "", apperr.ErrInvalidCredential
		}
		raw := strings.TrimSpace(header[len(bearerPrefix):])
		if raw == "" {
			return "", apperr.ErrNoCredential
		}
		return raw, nil
	}

	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", apperr.ErrNoCredential
}

// SetCookie attaches the credential to the response.
func SetCookie(w http.ResponseWriter, r *http.Request, credential string, opts CookieOptions) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure || IsSecureRequest(r),
		// Lax so the cookie survives the top-level redirect back from the
		// provider.
		SameSite: http.SameSiteLaxMode,
	}
	if opts.SessionTTL > 0 {
		c.MaxAge = int(opts.SessionTTL.Seconds())
		c.Expires = time.Now().Add(opts.SessionTTL)
	}
	http.SetCookie(w, c)
}

// ClearCookie removes the session cookie. Safe to call without a session.
func ClearCookie(w http.ResponseWriter, r *http.Request, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure || IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// IsSecureRequest reports whether r arrived over https, directly or behind a
// proxy.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
