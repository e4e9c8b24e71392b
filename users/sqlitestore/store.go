// Package sqlitestore persists identities and their provider token triple in
// SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/users"
	_ "modernc.org/sqlite"
)

var _ users.Repo = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlitestore.Open mkdir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.Open: %w", err)
	}
	// A single connection serializes writes; the triple update is then a
	// plain single-row UPDATE.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore.Open pragma: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS identity (
			id                      TEXT PRIMARY KEY,
			email                   TEXT NOT NULL UNIQUE,
			username                TEXT NOT NULL,
			password_hash           TEXT NOT NULL,
			is_admin                INTEGER NOT NULL DEFAULT 0,
			created_at              TEXT NOT NULL,
			provider_access_token   TEXT,
			provider_refresh_token  TEXT,
			provider_expires_at     TEXT
		);`,
	); err != nil {
		return fmt.Errorf("failed to init 'identity' table schema: %v", err)
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity (id, email, username, password_hash, is_admin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.PasswordHash, user.IsAdmin, formatTime(user.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("sqlitestore.Create: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, username, password_hash, is_admin, created_at,
	provider_access_token, provider_refresh_token, provider_expires_at FROM identity`

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getOne(ctx, selectUser+` WHERE email = ?`, users.NormalizeEmail(email))
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getOne(ctx, selectUser+` WHERE id = ?`, id)
}

func (s *Store) getOne(ctx context.Context, query string, arg string) (*users.User, error) {
	var (
		u                        users.User
		createdAt                string
		access, refresh, expires sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &createdAt,
		&access, &refresh, &expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore.getOne: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.Provider, err = tokenState(access, refresh, expires); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetProviderTokens(ctx context.Context, id string) (users.ProviderTokenState, error) {
	var access, refresh, expires sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT provider_access_token, provider_refresh_token, provider_expires_at FROM identity WHERE id = ?`, id,
	).Scan(&access, &refresh, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return users.ProviderTokenState{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return users.ProviderTokenState{}, fmt.Errorf("sqlitestore.GetProviderTokens: %w", err)
	}
	return tokenState(access, refresh, expires)
}

func (s *Store) UpdateProviderTokens(ctx context.Context, id string, state users.ProviderTokenState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("sqlitestore.UpdateProviderTokens: %w: %v", apperr.ErrInvalidRequest, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE identity
		 SET provider_access_token = ?, provider_refresh_token = ?, provider_expires_at = ?
		 WHERE id = ?`,
		state.AccessToken, state.RefreshToken, formatTime(state.ExpiresAt), id,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore.UpdateProviderTokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore.UpdateProviderTokens rows: %w", err)
	}
	if n == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

func tokenState(access, refresh, expires sql.NullString) (users.ProviderTokenState, error) {
	if !access.Valid || !refresh.Valid || !expires.Valid {
		return users.ProviderTokenState{}, nil
	}
	exp, err := parseTime(expires.String)
	if err != nil {
		return users.ProviderTokenState{}, err
	}
	return users.ProviderTokenState{AccessToken: access.String, RefreshToken: refresh.String, ExpiresAt: exp}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: bad timestamp %q: %w", s, err)
	}
	return t, nil
}
