package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/jrsteele09/go-spotify-link/users/repotest"
	"github.com/jrsteele09/go-spotify-link/users/sqlitestore"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) users.Repo {
		return openTestStore(t, filepath.Join(t.TempDir(), "link.db"))
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "link.db")

	s, err := sqlitestore.Open(path)
	require.NoError(t, err)
	u := &users.User{Email: "erin@example.com", Username: "erin", PasswordHash: "h"}
	require.NoError(t, s.Create(ctx, u))
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateProviderTokens(ctx, u.ID, users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: exp}))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	state, err := reopened.GetProviderTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a", state.AccessToken)
	require.True(t, exp.Equal(state.ExpiresAt))
}
