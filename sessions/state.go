package sessions

import (
	"net/http"
	"time"
)

const defaultStateTTL = 5 * time.Minute

// StateCookie stores the authorization state for a single request/response
// pair in a short-lived HttpOnly cookie.
type StateCookie struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions
}

func NewStateCookie(w http.ResponseWriter, r *http.Request, opts CookieOptions) *StateCookie {
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	return &StateCookie{w: w, r: r, opts: opts}
}

func (s *StateCookie) Save(state string) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure || IsSecureRequest(s.r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.opts.StateTTL.Seconds()),
	})
	return nil
}

func (s *StateCookie) Load() (string, bool) {
	c, err := s.r.Cookie(StateCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *StateCookie) Clear() {
	http.SetCookie(s.w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure || IsSecureRequest(s.r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
