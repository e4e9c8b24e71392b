package users

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// ProviderTokenState is the provider token triple held for a linked identity.
// AccessToken, RefreshToken and ExpiresAt are always written together.
type ProviderTokenState struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Linked reports whether the identity has completed a provider handshake.
func (s ProviderTokenState) Linked() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Validate enforces that a stored triple is complete.
func (s ProviderTokenState) Validate() error {
	if s.AccessToken == "" {
		return fmt.Errorf("provider access token is empty")
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("provider refresh token is empty")
	}
	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("provider token expiry is not set")
	}
	return nil
}

// Equal reports whether both triples hold the same tokens and expiry.
func (s ProviderTokenState) Equal(o ProviderTokenState) bool {
	return s.AccessToken == o.AccessToken &&
		s.RefreshToken == o.RefreshToken &&
		s.ExpiresAt.Equal(o.ExpiresAt)
}

// FreshAt reports whether the access token is still usable at now once the
// leeway is taken off its expiry.
func (s ProviderTokenState) FreshAt(now time.Time, leeway time.Duration) bool {
	return now.Add(leeway).Before(s.ExpiresAt)
}

type User struct {
	ID           string    `json:"id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"` // never serialize
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"created_at,omitempty"`

	Provider ProviderTokenState `json:"-"`
}

// NewUser validates registration input and returns a user with a hashed
// password. The ID is assigned by the repository.
func NewUser(username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email must be a valid email address")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("users.NewUser HashPassword: %w", err)
	}
	return &User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}, nil
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername rejects empty and purely numeric usernames.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if _, err := strconv.ParseFloat(username, 64); err == nil {
		return fmt.Errorf("username must not be a number")
	}
	return nil
}

func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
