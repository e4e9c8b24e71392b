// Package pgstore persists identities and their provider token triple in
// PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/users"
)

const uniqueViolation = "23505"

var _ users.Repo = (*Store)(nil)

// Store is a users.Repo over a pgx pool. The pool is owned by the caller.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgstore: nil pool")
	}
	return &Store{pool: pool}, nil
}

// Connect opens a pool for url and applies the schema.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore.Connect ping: %w", err)
	}
	s, _ := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate creates the identities table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS identities (
			id                      TEXT PRIMARY KEY,
			email                   TEXT NOT NULL UNIQUE,
			username                TEXT NOT NULL,
			password_hash           TEXT NOT NULL,
			is_admin                BOOLEAN NOT NULL DEFAULT FALSE,
			created_at              TIMESTAMPTZ NOT NULL,
			provider_access_token   TEXT,
			provider_refresh_token  TEXT,
			provider_expires_at     TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("pgstore.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = users.NormalizeEmail(user.Email)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (id, email, username, password_hash, is_admin, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("pgstore.Create: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, username, password_hash, is_admin, created_at,
	provider_access_token, provider_refresh_token, provider_expires_at FROM identities`

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getOne(ctx, selectUser+` WHERE email = $1`, users.NormalizeEmail(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (s *Store) getOne(ctx context.Context, query, arg string) (*users.User, error) {
	var (
		u               users.User
		access, refresh *string
		expires         *time.Time
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt,
		&access, &refresh, &expires,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore.getOne: %w", err)
	}
	u.Provider = tokenState(access, refresh, expires)
	return &u, nil
}

func (s *Store) GetProviderTokens(ctx context.Context, id string) (users.ProviderTokenState, error) {
	var (
		access, refresh *string
		expires         *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT provider_access_token, provider_refresh_token, provider_expires_at FROM identities WHERE id = $1`, id,
	).Scan(&access, &refresh, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.ProviderTokenState{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return users.ProviderTokenState{}, fmt.Errorf("pgstore.GetProviderTokens: %w", err)
	}
	return tokenState(access, refresh, expires), nil
}

func (s *Store) UpdateProviderTokens(ctx context.Context, id string, state users.ProviderTokenState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("pgstore.UpdateProviderTokens: %w: %v", apperr.ErrInvalidRequest, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities
		 SET provider_access_token = $1, provider_refresh_token = $2, provider_expires_at = $3
		 WHERE id = $4`,
		state.AccessToken, state.RefreshToken, state.ExpiresAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("pgstore.UpdateProviderTokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

func tokenState(access, refresh *string, expires *time.Time) users.ProviderTokenState {
	if access == nil || refresh == nil || expires == nil {
		return users.ProviderTokenState{}
	}
	return users.ProviderTokenState{AccessToken: *access, RefreshToken: *refresh, ExpiresAt: expires.UTC()}
}
