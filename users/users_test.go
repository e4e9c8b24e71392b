package users_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
		wantErr  string
	}{
		{name: "valid", username: "alice", email: " Alice@Example.com ", password: "secret1"},
		{name: "numeric username", username: "12345", email: "a@b.com", password: "secret1", wantErr: "username must not be a number"},
		{name: "empty username", username: "  ", email: "a@b.com", password: "secret1", wantErr: "username is required"},
		{name: "email without at", username: "alice", email: "alice.example.com", password: "secret1", wantErr: "valid email"},
		{name: "short password", username: "alice", email: "a@b.com", password: "12345", wantErr: "at least 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := users.NewUser(tt.username, tt.email, tt.password)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "alice@example.com", u.Email)
			require.NotEqual(t, tt.password, u.PasswordHash)
			require.True(t, u.CheckPassword(tt.password))
			require.False(t, u.CheckPassword("wrong-password"))
		})
	}
}

func TestProviderTokenState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero value is not linked", func(t *testing.T) {
		var s users.ProviderTokenState
		require.False(t, s.Linked())
		require.Error(t, s.Validate())
	})

	t.Run("complete triple is linked", func(t *testing.T) {
		s := users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: now}
		require.True(t, s.Linked())
		require.NoError(t, s.Validate())
	})

	t.Run("freshness honours leeway", func(t *testing.T) {
		s := users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Minute)}
		require.True(t, s.FreshAt(now, 0))
		require.True(t, s.FreshAt(now, 30*time.Second))
		require.False(t, s.FreshAt(now, time.Minute))
		require.False(t, s.FreshAt(now.Add(time.Minute), 0))
	})

	t.Run("equality ignores time zone", func(t *testing.T) {
		s := users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: now}
		require.True(t, s.Equal(users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.In(time.FixedZone("X", 3600))}))
		require.False(t, s.Equal(users.ProviderTokenState{AccessToken: "a", RefreshToken: "r2", ExpiresAt: now}))
		require.False(t, s.Equal(users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Second)}))
	})
}
