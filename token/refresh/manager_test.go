package refresh_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/provider"
	"github.com/jrsteele09/go-spotify-link/token/refresh"
	"github.com/jrsteele09/go-spotify-link/users"
	fakeuserrepo "github.com/jrsteele09/go-spotify-link/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	grant   provider.Grant
	err     error

	mu   sync.Mutex
	seen []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*provider.Grant, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, &apperr.ProviderError{Kind: apperr.ErrProviderUnavailable, StatusCode: http.StatusGatewayTimeout}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	g := f.grant
	return &g, nil
}

type testFixture struct {
	now       time.Time
	repo      *fakeuserrepo.FakeUserRepo
	refresher *fakeRefresher
	manager   *refresh.Manager
	userID    string
}

func setupTestFixture(t *testing.T, initial users.ProviderTokenState, opts ...refresh.ManagerOption) *testFixture {
	t.Helper()
	f := &testFixture{
		now:  time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		repo: fakeuserrepo.NewFakeUserRepo(),
		refresher: &fakeRefresher{
			grant: provider.Grant{AccessToken: "AT2", ExpiresIn: time.Hour},
		},
	}
	u := &users.User{Email: "a@b.com", Username: "a", PasswordHash: "h"}
	require.NoError(t, f.repo.Create(context.Background(), u))
	f.userID = u.ID
	if initial.Linked() {
		require.NoError(t, f.repo.UpdateProviderTokens(context.Background(), u.ID, initial))
	}

	base := []refresh.ManagerOption{refresh.WithNowFunc(func() time.Time { return f.now })}
	f.manager = refresh.NewManager(f.repo, f.refresher, append(base, opts...)...)
	return f
}

func (f *testFixture) stored(t *testing.T) users.ProviderTokenState {
	t.Helper()
	s, err := f.repo.GetProviderTokens(context.Background(), f.userID)
	require.NoError(t, err)
	return s
}

func expiredState(now time.Time) users.ProviderTokenState {
	return users.ProviderTokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: now.Add(-10 * time.Second)}
}

func TestEnsureFreshTokenNotLinked(t *testing.T) {
	f := setupTestFixture(t, users.ProviderTokenState{})

	_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
	require.ErrorIs(t, err, apperr.ErrNotLinked)

	_, err = f.manager.EnsureFreshToken(context.Background(), "unknown-identity")
	require.ErrorIs(t, err, apperr.ErrNotLinked)

	_, err = f.manager.EnsureFreshToken(context.Background(), "")
	require.ErrorIs(t, err, apperr.ErrAuthenticationRequired)

	require.Zero(t, f.refresher.calls.Load())
}

func TestEnsureFreshTokenFresh(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, users.ProviderTokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: now.Add(time.Hour)})

	for i := 0; i < 3; i++ {
		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "AT1", got)
	}
	require.Zero(t, f.refresher.calls.Load())
}

func TestEnsureFreshTokenRefresh(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("keeps refresh token when not rotated", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		before := f.stored(t).ExpiresAt

		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "AT2", got)
		require.EqualValues(t, 1, f.refresher.calls.Load())
		require.Equal(t, []string{"RT1"}, f.refresher.seen)

		stored := f.stored(t)
		require.Equal(t, "AT2", stored.AccessToken)
		require.Equal(t, "RT1", stored.RefreshToken)
		require.True(t, stored.ExpiresAt.After(before))
		require.True(t, now.Add(time.Hour).Equal(stored.ExpiresAt))
	})

	t.Run("stores rotated refresh token", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		f.refresher.grant.RefreshToken = "RT2"

		state, err := f.manager.EnsureFresh(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "RT2", state.RefreshToken)
		require.Equal(t, "RT2", f.stored(t).RefreshToken)
	})

	t.Run("expiry exactly now refreshes", func(t *testing.T) {
		f := setupTestFixture(t, users.ProviderTokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: now})
		_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.EqualValues(t, 1, f.refresher.calls.Load())
	})

	t.Run("leeway refreshes early", func(t *testing.T) {
		state := users.ProviderTokenState{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: now.Add(20 * time.Second)}
		f := setupTestFixture(t, state, refresh.WithLeeway(30*time.Second))
		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "AT2", got)
		require.EqualValues(t, 1, f.refresher.calls.Load())
	})

	t.Run("rejected refresh leaves state untouched", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		f.refresher.err = &apperr.ProviderError{Kind: apperr.ErrRefreshFailed, StatusCode: http.StatusBadRequest, Code: "invalid_grant"}

		_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.ErrorIs(t, err, apperr.ErrRefreshFailed)
		require.Equal(t, expiredState(now), f.stored(t))
	})

	t.Run("provider unavailable leaves state untouched", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now), refresh.WithTimeout(50*time.Millisecond))
		f.refresher.gate = make(chan struct{})
		defer close(f.refresher.gate)

		_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.ErrorIs(t, err, apperr.ErrProviderUnavailable)
		require.Equal(t, expiredState(now), f.stored(t))
	})

	t.Run("empty access token is a failed refresh", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		f.refresher.grant = provider.Grant{}
		_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.ErrorIs(t, err, apperr.ErrRefreshFailed)
		require.Equal(t, expiredState(now), f.stored(t))
	})
}

func TestEnsureFreshTokenConcurrentCallersShareOneRefresh(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, expiredState(now))
	f.refresher.gate = make(chan struct{})
	f.refresher.started = make(chan struct{}, 1)

	const callers = 10
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	<-f.refresher.started
	time.Sleep(20 * time.Millisecond)
	close(f.refresher.gate)
	wg.Wait()

	require.EqualValues(t, 1, f.refresher.calls.Load())
	for _, r := range results {
		require.Equal(t, "AT2", r)
	}
}

func TestEnsureFreshTokenSurvivesCallerCancellation(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, expiredState(now))
	f.refresher.gate = make(chan struct{})
	f.refresher.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.manager.EnsureFreshToken(ctx, f.userID)
		errCh <- err
	}()

	<-f.refresher.started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(f.refresher.gate)
	require.Eventually(t, func() bool {
		s, err := f.repo.GetProviderTokens(context.Background(), f.userID)
		return err == nil && s.AccessToken == "AT2"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "RT1", f.stored(t).RefreshToken)
}

func TestEnsureFreshTokenPersistenceFailure(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, expiredState(now))
	f.refresher.grant.RefreshToken = "RT2"

	f.repo.SetFailUpdates(true)
	_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
	require.ErrorIs(t, err, apperr.ErrPersistence)
	require.Equal(t, 1, f.manager.Pending())
	require.Equal(t, expiredState(now), f.stored(t))

	// Still failing: the held triple is retried and nothing else happens.
	_, err = f.manager.EnsureFreshToken(context.Background(), f.userID)
	require.ErrorIs(t, err, apperr.ErrPersistence)
	require.EqualValues(t, 1, f.refresher.calls.Load())

	f.repo.SetFailUpdates(false)
	got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
	require.NoError(t, err)
	require.Equal(t, "AT2", got)
	require.Zero(t, f.manager.Pending())
	require.EqualValues(t, 1, f.refresher.calls.Load())

	stored := f.stored(t)
	require.Equal(t, "AT2", stored.AccessToken)
	require.Equal(t, "RT2", stored.RefreshToken)
}

// gatedRepo blocks a write of the triple whose access token is blockOn
// until gate is closed.
type gatedRepo struct {
	*fakeuserrepo.FakeUserRepo
	blockOn string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedRepo) UpdateProviderTokens(ctx context.Context, id string, state users.ProviderTokenState) error {
	if state.AccessToken == g.blockOn {
		close(g.entered)
		<-g.gate
	}
	return g.FakeUserRepo.UpdateProviderTokens(ctx, id, state)
}

// holdRefreshed leaves the refreshed AT2/RT2 triple held after a failed write.
func holdRefreshed(t *testing.T, f *testFixture) {
	t.Helper()
	f.refresher.grant.RefreshToken = "RT2"
	f.repo.SetFailUpdates(true)
	_, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
	require.ErrorIs(t, err, apperr.ErrPersistence)
	require.Equal(t, 1, f.manager.Pending())
	f.repo.SetFailUpdates(false)
}

func TestStore(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	linked := users.ProviderTokenState{AccessToken: "NEW", RefreshToken: "RTN", ExpiresAt: now.Add(time.Hour)}

	t.Run("writes the triple", func(t *testing.T) {
		f := setupTestFixture(t, users.ProviderTokenState{})
		require.NoError(t, f.manager.Store(context.Background(), f.userID, linked))
		require.Equal(t, linked, f.stored(t))
	})

	t.Run("unknown identity", func(t *testing.T) {
		f := setupTestFixture(t, users.ProviderTokenState{})
		err := f.manager.Store(context.Background(), "gone", linked)
		require.ErrorIs(t, err, apperr.ErrUserNotFound)
		require.Zero(t, f.manager.Pending())
	})

	t.Run("failed write is held and retried", func(t *testing.T) {
		f := setupTestFixture(t, users.ProviderTokenState{})
		f.repo.SetFailUpdates(true)
		err := f.manager.Store(context.Background(), f.userID, linked)
		require.ErrorIs(t, err, apperr.ErrPersistence)
		require.Equal(t, 1, f.manager.Pending())

		f.repo.SetFailUpdates(false)
		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "NEW", got)
		require.Zero(t, f.manager.Pending())
		require.Zero(t, f.refresher.calls.Load())
	})

	t.Run("supersedes a held triple", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		holdRefreshed(t, f)

		require.NoError(t, f.manager.Store(context.Background(), f.userID, linked))
		require.Zero(t, f.manager.Pending())

		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "NEW", got)
		require.EqualValues(t, 1, f.refresher.calls.Load())
	})

	t.Run("held triple is dropped when the stored one changed", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		holdRefreshed(t, f)

		// Written by someone outside this manager.
		require.NoError(t, f.repo.UpdateProviderTokens(context.Background(), f.userID, linked))

		got, err := f.manager.EnsureFreshToken(context.Background(), f.userID)
		require.NoError(t, err)
		require.Equal(t, "NEW", got)
		require.Equal(t, linked, f.stored(t))
		require.Zero(t, f.manager.Pending())
	})

	t.Run("waits for an in-flight write of a held triple", func(t *testing.T) {
		f := setupTestFixture(t, expiredState(now))
		f.refresher.grant.RefreshToken = "RT2"

		repo := &gatedRepo{FakeUserRepo: f.repo, entered: make(chan struct{}), gate: make(chan struct{})}
		m := refresh.NewManager(repo, f.refresher, refresh.WithNowFunc(func() time.Time { return now }))
		f.repo.SetFailUpdates(true)
		_, err := m.EnsureFreshToken(context.Background(), f.userID)
		require.ErrorIs(t, err, apperr.ErrPersistence)
		f.repo.SetFailUpdates(false)
		require.Equal(t, 1, m.Pending())
		repo.blockOn = "AT2"

		flushed := make(chan error, 1)
		go func() {
			_, err := m.EnsureFreshToken(context.Background(), f.userID)
			flushed <- err
		}()
		<-repo.entered

		stored := make(chan error, 1)
		go func() { stored <- m.Store(context.Background(), f.userID, linked) }()

		select {
		case err := <-stored:
			t.Fatalf("store finished while the held triple was being written: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		close(repo.gate)
		require.NoError(t, <-flushed)
		require.NoError(t, <-stored)

		require.Equal(t, linked, f.stored(t))
		require.Zero(t, m.Pending())
	})
}
