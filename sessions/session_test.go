package sessions_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/sessions"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		cookie  string
		want    string
		wantErr error
	}{
		{name: "bearer header", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lower case scheme", header: "bearer abc", want: "abc"},
		{name: "cookie", cookie: "from-cookie", want: "from-cookie"},
		{name: "header wins over cookie", header: "Bearer from-header", cookie: "from-cookie", want: "from-header"},
		{name: "nothing", wantErr: apperr.ErrNoCredential},
		{name: "empty bearer", header: "Bearer ", wantErr: apperr.ErrNoCredential},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: apperr.ErrInvalidCredential},
		{name: "short header", header: "Bear", wantErr: apperr.ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: tt.cookie})
			}
			got, err := sessions.Extract(r)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSetAndClearCookie(t *testing.T) {
	t.Run("plain http in development", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/users/login", nil)
		sessions.SetCookie(w, r, "cred", sessions.CookieOptions{})

		c := w.Result().Cookies()[0]
		require.Equal(t, sessions.CookieName, c.Name)
		require.Equal(t, "cred", c.Value)
		require.True(t, c.HttpOnly)
		require.False(t, c.Secure)
		require.Equal(t, http.SameSiteLaxMode, c.SameSite)
		require.Zero(t, c.MaxAge)
	})

	t.Run("secure over tls and with ttl", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/users/login", nil)
		r.TLS = &tls.ConnectionState{}
		sessions.SetCookie(w, r, "cred", sessions.CookieOptions{SessionTTL: time.Hour})

		c := w.Result().Cookies()[0]
		require.True(t, c.Secure)
		require.Equal(t, 3600, c.MaxAge)
	})

	t.Run("secure behind proxy", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		require.True(t, sessions.IsSecureRequest(r))
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/users/logout", nil)
			sessions.ClearCookie(w, r, sessions.CookieOptions{Secure: true})
			c := w.Result().Cookies()[0]
			require.Equal(t, sessions.CookieName, c.Name)
			require.Empty(t, c.Value)
			require.Less(t, c.MaxAge, 0)
			require.True(t, c.Secure)
		}
	})
}

func TestStateCookie(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/spotify", nil)
	store := sessions.NewStateCookie(w, r, sessions.CookieOptions{StateTTL: time.Minute})

	_, ok := store.Load()
	require.False(t, ok)

	require.NoError(t, store.Save("state-value"))
	saved := w.Result().Cookies()[0]
	require.Equal(t, sessions.StateCookieName, saved.Name)
	require.Equal(t, 60, saved.MaxAge)
	require.True(t, saved.HttpOnly)

	cb := httptest.NewRequest(http.MethodGet, "/auth/spotify/callback", nil)
	cb.AddCookie(saved)
	w2 := httptest.NewRecorder()
	store = sessions.NewStateCookie(w2, cb, sessions.CookieOptions{})
	got, ok := store.Load()
	require.True(t, ok)
	require.Equal(t, "state-value", got)

	store.Clear()
	cleared := w2.Result().Cookies()[0]
	require.Equal(t, sessions.StateCookieName, cleared.Name)
	require.Less(t, cleared.MaxAge, 0)
}
