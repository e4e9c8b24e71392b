// Package refresh keeps each identity's provider access token usable,
// refreshing it on demand with at most one provider call in flight per
// identity.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/internal/metrics"
	"github.com/jrsteele09/go-spotify-link/internal/utils"
	"github.com/jrsteele09/go-spotify-link/provider"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 15 * time.Second

// Refresher performs the refresh-token exchange with the provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*provider.Grant, error)
}

// Manager handles provider token freshness, refresh and persistence
type Manager struct {
	repo      Repo
	refresher Refresher
	group     singleflight.Group
	leeway    time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	nowFunc   func() time.Time

	// locks serializes every write of an identity's triple.
	locks identityLocks

	// pending holds triples the provider issued but the store refused.
	// They are written before anything else is done for that identity,
	// unless the stored triple changed after they were held.
	pendingMu sync.Mutex
	pending   map[string]heldTriple
}

type heldTriple struct {
	state users.ProviderTokenState
	base  users.ProviderTokenState // stored triple when the write failed
	known bool                     // base could be read
}

type ManagerOption func(*Manager)

// WithLeeway treats tokens as expired this long before their declared
// expiry.
func WithLeeway(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.leeway = d
	}
}

// WithTimeout bounds a refresh, including the store write, independently of
// the caller's context.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, refresher Refresher, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:      repo,
		refresher: refresher,
		timeout:   defaultTimeout,
		logger:    log.Logger,
		nowFunc:   time.Now,
		pending:   make(map[string]heldTriple),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.leeway < 0 {
		m.leeway = 0
	}
	return m
}

// EnsureFreshToken returns a usable provider access token for identityID.
func (m *Manager) EnsureFreshToken(ctx context.Context, identityID string) (string, error) {
	state, err := m.EnsureFresh(ctx, identityID)
	if err != nil {
		return "", err
	}
	return state.AccessToken, nil
}

// EnsureFresh returns the identity's stored triple, refreshing it first when
// the access token has expired. A refreshed triple is stored before it is
// returned. Concurrent callers for the same identity share one refresh, and
// a refresh keeps running if its caller gives up.
func (m *Manager) EnsureFresh(ctx context.Context, identityID string) (users.ProviderTokenState, error) {
	if identityID == "" {
		return users.ProviderTokenState{}, apperr.ErrAuthenticationRequired
	}

	if !m.hasPending(identityID) {
		state, err := m.load(ctx, identityID)
		if err != nil {
			return users.ProviderTokenState{}, err
		}
		if state.FreshAt(m.nowFunc(), m.leeway) {
			m.metrics.Refresh(metrics.OutcomeFresh)
			return state, nil
		}
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(identityID, func() (any, error) {
		return m.refresh(flightCtx, identityID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return users.ProviderTokenState{}, res.Err
		}
		if res.Shared {
			m.metrics.Refresh(metrics.OutcomeCoalesced)
		}
		return res.Val.(users.ProviderTokenState), nil
	case <-ctx.Done():
		return users.ProviderTokenState{}, fmt.Errorf("refresh.EnsureFresh: %w", ctx.Err())
	}
}

func (m *Manager) load(ctx context.Context, identityID string) (users.ProviderTokenState, error) {
	state, err := m.repo.GetProviderTokens(ctx, identityID)
	if errors.Is(err, apperr.ErrUserNotFound) {
		m.metrics.Refresh(metrics.OutcomeNotLinked)
		return users.ProviderTokenState{}, apperr.ErrNotLinked
	}
	if err != nil {
		return users.ProviderTokenState{}, apperr.Wrapf(apperr.ErrPersistence, "refresh.load %s: %v", identityID, err)
	}
	if !state.Linked() {
		m.metrics.Refresh(metrics.OutcomeNotLinked)
		return users.ProviderTokenState{}, apperr.ErrNotLinked
	}
	return state, nil
}

// refresh runs inside the identity's flight.
func (m *Manager) refresh(parent context.Context, identityID string) (users.ProviderTokenState, error) {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	unlock := m.locks.lock(identityID)
	defer unlock()

	if err := m.flushPending(ctx, identityID); err != nil {
		return users.ProviderTokenState{}, err
	}

	// Another flight may have refreshed since the caller looked.
	state, err := m.load(ctx, identityID)
	if err != nil {
		return users.ProviderTokenState{}, err
	}
	if state.FreshAt(m.nowFunc(), m.leeway) {
		m.metrics.Refresh(metrics.OutcomeFresh)
		return state, nil
	}

	grant, err := m.refresher.Refresh(ctx, state.RefreshToken)
	if err == nil && grant.AccessToken == "" {
		err = &apperr.ProviderError{Kind: apperr.ErrRefreshFailed, StatusCode: http.StatusBadGateway, Code: "missing_access_token"}
	}
	if err != nil {
		if errors.Is(err, apperr.ErrProviderUnavailable) {
			m.metrics.Refresh(metrics.OutcomeProviderUnavailable)
		} else {
			m.metrics.Refresh(metrics.OutcomeFailed)
		}
		m.logger.Warn().Err(err).Str("identity", identityID).Msg("provider token refresh failed")
		return users.ProviderTokenState{}, err
	}

	next := users.ProviderTokenState{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    m.nowFunc().Add(grant.ExpiresIn).UTC(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = state.RefreshToken
	}

	if err := m.repo.UpdateProviderTokens(ctx, identityID, next); err != nil {
		m.metrics.Refresh(metrics.OutcomePersistenceFailed)
		m.logPending(err, identityID, next)
		m.hold(identityID, heldTriple{state: next, base: state, known: true})
		return users.ProviderTokenState{}, apperr.Wrapf(apperr.ErrPersistence, "refresh: store %s: %v", identityID, err)
	}

	m.metrics.Refresh(metrics.OutcomeRefreshed)
	m.logger.Debug().Str("identity", identityID).Time("expires_at", next.ExpiresAt).Msg("provider token refreshed")
	return next, nil
}

// Store writes a newly obtained triple for the identity. It waits for any
// refresh of the same identity and discards a held triple, which the new one
// supersedes. A failed write is held for retry and reported as
// errors.ErrPersistence; an unknown identity is errors.ErrUserNotFound.
func (m *Manager) Store(ctx context.Context, identityID string, state users.ProviderTokenState) error {
	unlock := m.locks.lock(identityID)
	defer unlock()

	base, readErr := m.repo.GetProviderTokens(ctx, identityID)
	if err := m.repo.UpdateProviderTokens(ctx, identityID, state); err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return err
		}
		m.metrics.Refresh(metrics.OutcomePersistenceFailed)
		m.logPending(err, identityID, state)
		m.hold(identityID, heldTriple{state: state, base: base, known: readErr == nil})
		return apperr.Wrapf(apperr.ErrPersistence, "refresh.Store %s: %v", identityID, err)
	}
	m.release(identityID)
	return nil
}

// Pending reports how many identities have an unsaved triple.
func (m *Manager) Pending() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

func (m *Manager) hold(identityID string, h heldTriple) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending[identityID] = h
}

func (m *Manager) release(identityID string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	delete(m.pending, identityID)
}

func (m *Manager) hasPending(identityID string) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	_, ok := m.pending[identityID]
	return ok
}

// flushPending must be called with the identity's lock held.
func (m *Manager) flushPending(ctx context.Context, identityID string) error {
	m.pendingMu.Lock()
	held, ok := m.pending[identityID]
	m.pendingMu.Unlock()
	if !ok {
		return nil
	}

	if held.known {
		current, err := m.repo.GetProviderTokens(ctx, identityID)
		if err != nil && !errors.Is(err, apperr.ErrUserNotFound) {
			return apperr.Wrapf(apperr.ErrPersistence, "refresh: read before storing held tokens for %s: %v", identityID, err)
		}
		if err != nil || !current.Equal(held.base) {
			m.release(identityID)
			m.logger.Warn().Str("identity", identityID).Msg("held provider tokens superseded, discarded")
			return nil
		}
	}

	if err := m.repo.UpdateProviderTokens(ctx, identityID, held.state); err != nil {
		m.metrics.Refresh(metrics.OutcomePersistenceFailed)
		m.logPending(err, identityID, held.state)
		return apperr.Wrapf(apperr.ErrPersistence, "refresh: store held tokens for %s: %v", identityID, err)
	}

	m.release(identityID)
	m.logger.Info().Str("identity", identityID).Msg("held provider tokens stored")
	return nil
}

func (m *Manager) logPending(err error, identityID string, state users.ProviderTokenState) {
	m.logger.Error().Err(err).
		Str("identity", identityID).
		Time("expires_at", state.ExpiresAt).
		Str("access_fp", utils.Fingerprint(state.AccessToken)).
		Str("refresh_fp", utils.Fingerprint(state.RefreshToken)).
		Msg("provider tokens could not be stored, holding for retry")
}
