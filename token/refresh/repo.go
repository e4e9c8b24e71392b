package refresh

import (
	"context"

	"github.com/jrsteele09/go-spotify-link/users"
)

// Repo is the part of the credential store the manager reads and writes.
type Repo interface {
	GetProviderTokens(ctx context.Context, id string) (users.ProviderTokenState, error)
	UpdateProviderTokens(ctx context.Context, id string, state users.ProviderTokenState) error
}
