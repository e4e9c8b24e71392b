package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/token"
	"github.com/jrsteele09/go-spotify-link/users"
)

// dummyPasswordHash is compared against when the email is unknown so a
// failed login costs the same either way.
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, _ := users.HashPassword("not-a-registered-password")
	return hash
})

// AccountService registers identities and opens and closes their sessions.
type AccountService struct {
	users         users.Repo
	tokens        *token.Manager
	nowTime       func() time.Time
	checkPassword func(password, hash string) bool
}

// AccountServiceOption defines a function type to modify the AccountService instance.
type AccountServiceOption func(*AccountService)

// WithPasswordCheck replaces the password hash comparison (primarily for
// testing)
func WithPasswordCheck(check func(password, hash string) bool) AccountServiceOption {
	return func(as *AccountService) {
		as.checkPassword = check
	}
}

// WithAccountNowTime sets the now time function (primarily for testing)
func WithAccountNowTime(nowFunc func() time.Time) AccountServiceOption {
	return func(as *AccountService) {
		as.nowTime = nowFunc
	}
}

func NewAccountService(userRepo users.Repo, tokens *token.Manager, options ...AccountServiceOption) (*AccountService, error) {
	if userRepo == nil {
		return nil, errors.New("[NewAccountService] Users repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAccountService] token manager is required")
	}

	as := &AccountService{
		users:         userRepo,
		tokens:        tokens,
		nowTime:       time.Now,
		checkPassword: users.CheckPasswordHash,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// Register creates a new identity. Validation failures wrap
// errors.ErrInvalidRequest.
func (as *AccountService) Register(ctx context.Context, username, email, password string) (*users.User, error) {
	u, err := users.NewUser(username, email, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
	}
	u.CreatedAt = as.nowTime().UTC()
	if err := as.users.Create(ctx, u); err != nil {
		return nil, apperr.Wrapf(err, "AccountService.Register")
	}
	return u, nil
}

// Login checks the password and issues a session credential.
func (as *AccountService) Login(ctx context.Context, email, password string) (string, *token.Claims, error) {
	u, err := as.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrUserNotFound) {
		as.checkPassword(password, dummyPasswordHash())
		return "", nil, apperr.ErrInvalidLogin
	}
	if err != nil {
		return "", nil, apperr.Wrapf(err, "AccountService.Login GetByEmail")
	}
	if !as.checkPassword(password, u.PasswordHash) {
		return "", nil, apperr.ErrInvalidLogin
	}

	raw, claims, err := as.tokens.Issue(u)
	if err != nil {
		return "", nil, apperr.Wrapf(err, "AccountService.Login Issue")
	}
	return raw, claims, nil
}

// Logout revokes credential if it is still valid. Unknown or already invalid
// credentials are ignored.
func (as *AccountService) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	claims, err := as.tokens.Verify(ctx, credential)
	if err != nil {
		return nil
	}
	return as.tokens.Revoke(ctx, claims)
}
