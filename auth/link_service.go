package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/internal/metrics"
	"github.com/jrsteele09/go-spotify-link/internal/utils"
	"github.com/jrsteele09/go-spotify-link/provider"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	stateLength        = 32
	defaultExchangeTTL = 15 * time.Second
)

// StateStore holds the state value between BeginAuthorization and the
// provider's callback for one user agent.
type StateStore interface {
	Save(state string) error
	Load() (string, bool)
	Clear()
}

// AuthCodeProvider is the part of the provider client the handshake needs.
type AuthCodeProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*provider.Grant, error)
}

// TokenWriter stores a linked triple in step with any refresh of the same
// identity. A failed write is kept by the writer for retry.
type TokenWriter interface {
	Store(ctx context.Context, identityID string, state users.ProviderTokenState) error
}

// repoWriter writes straight to the identity store.
type repoWriter struct {
	users users.Repo
}

func (w repoWriter) Store(ctx context.Context, identityID string, state users.ProviderTokenState) error {
	return w.users.UpdateProviderTokens(ctx, identityID, state)
}

// Callback carries the query parameters of the provider redirect together
// with the identity of the authenticated caller.
type Callback struct {
	IdentityID string
	Code       string
	State      string
	Error      string // provider supplied error, e.g. access_denied
}

// LinkService runs the authorization code handshake that links an identity
// to its provider account.
//
// Per user agent the handshake moves from Unstarted to AwaitingCallback when
// BeginAuthorization stores a state, and to Linked when CompleteAuthorization
// exchanges the code and stores the token triple. A state is consumed by the
// first callback that presents it; any failure after that returns the agent
// to Unstarted.
type LinkService struct {
	users       users.Repo
	provider    AuthCodeProvider
	tokens      TokenWriter
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	exchangeTTL time.Duration
	nowTime     func() time.Time
}

type LinkServiceOption func(*LinkService)

func WithLogger(logger zerolog.Logger) LinkServiceOption {
	return func(ls *LinkService) {
		ls.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) LinkServiceOption {
	return func(ls *LinkService) {
		ls.metrics = m
	}
}

// WithTokenWriter sets how linked triples are stored. The default writes to
// the identity store directly.
func WithTokenWriter(w TokenWriter) LinkServiceOption {
	return func(ls *LinkService) {
		ls.tokens = w
	}
}

// WithExchangeTimeout bounds the code exchange and the store write that
// follows it.
func WithExchangeTimeout(d time.Duration) LinkServiceOption {
	return func(ls *LinkService) {
		ls.exchangeTTL = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LinkServiceOption {
	return func(ls *LinkService) {
		ls.nowTime = nowFunc
	}
}

func NewLinkService(userRepo users.Repo, p AuthCodeProvider, options ...LinkServiceOption) (*LinkService, error) {
	if userRepo == nil {
		return nil, errors.New("[NewLinkService] Users repo is required")
	}
	if p == nil {
		return nil, errors.New("[NewLinkService] provider is required")
	}
	ls := &LinkService{
		users:       userRepo,
		provider:    p,
		logger:      log.Logger,
		exchangeTTL: defaultExchangeTTL,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(ls)
	}
	if ls.tokens == nil {
		ls.tokens = repoWriter{users: userRepo}
	}
	return ls, nil
}

// BeginAuthorization stores a fresh state in store and returns the provider
// consent URL carrying it.
func (ls *LinkService) BeginAuthorization(_ context.Context, identityID string, store StateStore) (string, error) {
	if identityID == "" {
		return "", apperr.ErrAuthenticationRequired
	}
	state, err := utils.RandomString(stateLength)
	if err != nil {
		return "", apperr.Wrapf(err, "LinkService.BeginAuthorization")
	}
	if err := store.Save(state); err != nil {
		return "", apperr.Wrapf(err, "LinkService.BeginAuthorization Save")
	}
	ls.metrics.Handshake(metrics.OutcomeStarted)
	return ls.provider.AuthCodeURL(state), nil
}

// CompleteAuthorization validates the callback, exchanges the code and
// stores the resulting triple for the identity.
func (ls *LinkService) CompleteAuthorization(ctx context.Context, cb Callback, store StateStore) (*users.ProviderTokenState, error) {
	if cb.IdentityID == "" {
		return nil, apperr.ErrAuthenticationRequired
	}

	// A mismatched state leaves the stored one alone so a forged callback
	// cannot cancel a genuine handshake in flight.
	expected, ok := store.Load()
	if !ok || cb.State == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(cb.State)) != 1 {
		ls.metrics.Handshake(metrics.OutcomeStateMismatch)
		return nil, apperr.ErrStateMismatch
	}
	store.Clear()

	if cb.Error != "" || cb.Code == "" {
		ls.metrics.Handshake(metrics.OutcomeInvalidGrant)
		code := cb.Error
		if code == "" {
			code = "missing_code"
		}
		return nil, &apperr.ProviderError{Kind: apperr.ErrInvalidAuthorizationGrant, StatusCode: http.StatusBadRequest, Code: code}
	}

	// The code is single use, so once sent the exchange and the write must
	// finish even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ls.exchangeTTL)
	defer cancel()

	grant, err := ls.provider.Exchange(ctx, cb.Code)
	if err != nil {
		if errors.Is(err, apperr.ErrProviderUnavailable) {
			ls.metrics.Handshake(metrics.OutcomeProviderUnavailable)
		} else {
			ls.metrics.Handshake(metrics.OutcomeInvalidGrant)
		}
		return nil, err
	}

	state := users.ProviderTokenState{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    ls.nowTime().Add(grant.ExpiresIn).UTC(),
	}
	if err := ls.tokens.Store(ctx, cb.IdentityID, state); err != nil {
		ls.metrics.Handshake(metrics.OutcomePersistenceFailed)
		ls.logger.Error().Err(err).
			Str("identity", cb.IdentityID).
			Time("expires_at", state.ExpiresAt).
			Str("access_fp", utils.Fingerprint(state.AccessToken)).
			Str("refresh_fp", utils.Fingerprint(state.RefreshToken)).
			Msg("linked provider tokens could not be stored")
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.ErrAuthenticationRequired
		}
		if errors.Is(err, apperr.ErrPersistence) {
			return nil, apperr.Wrapf(err, "LinkService.CompleteAuthorization")
		}
		return nil, apperr.Wrapf(apperr.ErrPersistence, "LinkService.CompleteAuthorization: %v", err)
	}

	ls.metrics.Handshake(metrics.OutcomeLinked)
	ls.logger.Info().Str("identity", cb.IdentityID).Time("expires_at", state.ExpiresAt).Msg("provider account linked")
	return &state, nil
}
