package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/internal/metrics"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultRevocationTTL = 30 * 24 * time.Hour

// Manager issues and verifies session credentials.
type Manager struct {
	signer        Signer
	issuer        string
	ttl           time.Duration // zero means no expiry claim
	revocationTTL time.Duration
	revokedCache  RevokedTokenCache
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	nowFunc       func() time.Time
}

type ManagerOption func(*Manager)

// WithTTL sets the credential lifetime. Zero issues credentials without an
// expiry claim.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

// WithRevocationTTL bounds how long credentials without an expiry stay on
// the revocation list.
func WithRevocationTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.revocationTTL = ttl
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

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		revokedCache: NewInMemoryRevokedTokenCache(),
		logger:       log.Logger,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.revocationTTL <= 0 {
		m.revocationTTL = defaultRevocationTTL
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// Issue signs a credential for user.
func (m *Manager) Issue(user *users.User) (string, *Claims, error) {
	if user == nil || user.ID == "" {
		return "", nil, fmt.Errorf("token.Issue: user has no id")
	}
	now := m.nowFunc()
	jti, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("token.Issue ulid.New: %w", err)
	}

	claims := &Claims{
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   m.issuer,
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       jti.String(),
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("token.Issue: %w", err)
	}
	return signed, claims, nil
}

// Verify checks raw and returns its claims. Every failure, including a
// revoked credential or an unreachable revocation list, is reported as
// errors.ErrInvalidCredential.
func (m *Manager) Verify(ctx context.Context, raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		m.metrics.Verification(metrics.OutcomeInvalid)
		return nil, apperr.ErrInvalidCredential
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, m.signer.GetVerificationKey, parserOpts...)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		m.metrics.Verification(metrics.OutcomeInvalid)
		return nil, apperr.ErrInvalidCredential
	}

	if claims.ID != "" {
		revoked, err := m.revokedCache.IsRevoked(ctx, claims.ID)
		if err != nil {
			m.logger.Err(err).Str("jti", claims.ID).Msg("revocation lookup failed")
			m.metrics.Verification(metrics.OutcomeInvalid)
			return nil, apperr.ErrInvalidCredential
		}
		if revoked {
			m.metrics.Verification(metrics.OutcomeRevoked)
			return nil, apperr.ErrInvalidCredential
		}
	}

	m.metrics.Verification(metrics.OutcomeValid)
	return claims, nil
}

// Revoke adds the credential to the revocation list until it would have
// expired anyway.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	now := m.nowFunc()
	exp := now.Add(m.revocationTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if !exp.After(now) {
		return nil
	}
	if err := m.revokedCache.Add(ctx, claims.ID, exp); err != nil {
		return fmt.Errorf("token.Revoke: %w", err)
	}
	return nil
}

// Cleanup drops expired revocation entries.
func (m *Manager) Cleanup() {
	m.revokedCache.Cleanup()
}
