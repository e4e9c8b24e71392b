package users

import "context"

// Repo is the credential store. Implementations return
// errors.ErrUserNotFound for unknown identities and errors.ErrUserExists when
// an email is already registered.
type Repo interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)

	// GetProviderTokens returns the identity's current triple. An identity
	// that has never linked returns a zero value and no error.
	GetProviderTokens(ctx context.Context, id string) (ProviderTokenState, error)

	// UpdateProviderTokens replaces all three fields in a single write. An
	// incomplete triple is rejected with errors.ErrInvalidRequest.
	UpdateProviderTokens(ctx context.Context, id string, state ProviderTokenState) error
}
