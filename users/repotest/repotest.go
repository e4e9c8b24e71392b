// Package repotest holds the behaviour every users.Repo implementation must
// share. Store packages call Run from their own tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises repo against the users.Repo contract. newRepo must return an
// empty store.
func Run(t *testing.T, newRepo func(t *testing.T) users.Repo) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Email: "Alice@Example.com", Username: "alice", PasswordHash: "hash", IsAdmin: true}
		require.NoError(t, repo.Create(ctx, u))
		require.NotEmpty(t, u.ID)

		byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
		require.Equal(t, "alice", byEmail.Username)
		require.Equal(t, "hash", byEmail.PasswordHash)
		require.True(t, byEmail.IsAdmin)
		require.False(t, byEmail.Provider.Linked())

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", byID.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, &users.User{Email: "bob@example.com", Username: "bob", PasswordHash: "h"}))
		err := repo.Create(ctx, &users.User{Email: "BOB@example.com", Username: "bob2", PasswordHash: "h"})
		require.ErrorIs(t, err, apperr.ErrUserExists)
	})

	t.Run("unknown identity", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, "missing")
		require.ErrorIs(t, err, apperr.ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "missing@example.com")
		require.ErrorIs(t, err, apperr.ErrUserNotFound)
		_, err = repo.GetProviderTokens(ctx, "missing")
		require.ErrorIs(t, err, apperr.ErrUserNotFound)
		err = repo.UpdateProviderTokens(ctx, "missing", users.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now()})
		require.ErrorIs(t, err, apperr.ErrUserNotFound)
	})

	t.Run("provider tokens round trip", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Email: "carol@example.com", Username: "carol", PasswordHash: "h"}
		require.NoError(t, repo.Create(ctx, u))

		state, err := repo.GetProviderTokens(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, state.Linked())

		expires := time.Date(2026, 3, 1, 10, 30, 0, 123000000, time.UTC)
		want := users.ProviderTokenState{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: expires}
		require.NoError(t, repo.UpdateProviderTokens(ctx, u.ID, want))

		got, err := repo.GetProviderTokens(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, want.AccessToken, got.AccessToken)
		require.Equal(t, want.RefreshToken, got.RefreshToken)
		require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

		loaded, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "access-1", loaded.Provider.AccessToken)
	})

	t.Run("incomplete triple is rejected", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Email: "erin@example.com", Username: "erin", PasswordHash: "h"}
		require.NoError(t, repo.Create(ctx, u))

		err := repo.UpdateProviderTokens(ctx, u.ID, users.ProviderTokenState{AccessToken: "a", ExpiresAt: time.Now()})
		require.ErrorIs(t, err, apperr.ErrInvalidRequest)

		got, err := repo.GetProviderTokens(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.Linked())
	})

	t.Run("concurrent updates never mix triples", func(t *testing.T) {
		repo := newRepo(t)
		u := &users.User{Email: "dave@example.com", Username: "dave", PasswordHash: "h"}
		require.NoError(t, repo.Create(ctx, u))

		states := []users.ProviderTokenState{
			{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Unix(1000, 0).UTC()},
			{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: time.Unix(2000, 0).UTC()},
		}
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(s users.ProviderTokenState) {
				defer wg.Done()
				assert.NoError(t, repo.UpdateProviderTokens(ctx, u.ID, s))
			}(states[i%2])
		}
		wg.Wait()

		got, err := repo.GetProviderTokens(ctx, u.ID)
		require.NoError(t, err)
		switch got.AccessToken {
		case "a1":
			require.Equal(t, "r1", got.RefreshToken)
			require.True(t, states[0].ExpiresAt.Equal(got.ExpiresAt))
		case "a2":
			require.Equal(t, "r2", got.RefreshToken)
			require.True(t, states[1].ExpiresAt.Equal(got.ExpiresAt))
		default:
			t.Fatalf("unexpected access token %q", got.AccessToken)
		}
	})
}
