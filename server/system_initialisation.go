package server

import (
	"context"
	"errors"
	"fmt"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/internal/utils"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminUsername  = "admin"
	generatedPasswordSize = 16
)

// InitialiseSystem creates the administrator identity named by ADMIN_EMAIL
// when it does not exist yet. Nothing is created when no email is configured.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	email := s.config.GetAdminEmail()
	if email == "" {
		return nil
	}

	generatedPassword, err := s.createAdmin(ctx, email, s.config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin: %w", err)
	}

	if generatedPassword != "" {
		log.Warn().
			Str("email", email).
			Str("password", generatedPassword).
			Msg("administrator created with a generated password, set ADMIN_PASSWORD to choose one")
	}
	return nil
}

// createAdmin returns the generated password when it had to make one up.
func (s *Server) createAdmin(ctx context.Context, email, password string) (generatedPassword string, err error) {
	existing, err := s.deps.Users.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		if !existing.IsAdmin {
			log.Warn().Str("email", email).Msg("admin email belongs to a non-admin identity")
		}
		return "", nil
	}
	if !errors.Is(err, apperr.ErrUserNotFound) {
		return "", fmt.Errorf("[server createAdmin] failed to look up admin: %w", err)
	}

	if password == "" {
		password, err = utils.RandomString(generatedPasswordSize)
		if err != nil {
			return "", fmt.Errorf("[server createAdmin] failed to generate password: %w", err)
		}
		generatedPassword = password
	}

	admin, err := users.NewUser(DefaultAdminUsername, email, password)
	if err != nil {
		return "", fmt.Errorf("[server createAdmin] invalid admin settings: %w", err)
	}
	admin.IsAdmin = true

	if err := s.deps.Users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("[server createAdmin] failed to create admin: %w", err)
	}
	log.Info().Str("identity", admin.ID).Str("email", admin.Email).Msg("administrator created")
	return generatedPassword, nil
}
