package fakeuserrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"github.com/jrsteele09/go-spotify-link/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex

	// FailUpdates makes UpdateProviderTokens return an error while set.
	FailUpdates bool
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := users.NormalizeEmail(user.Email)
	if _, ok := ur.emailIds[email]; ok {
		return apperr.ErrUserExists
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = email
	ur.users[user.ID] = *user
	ur.emailIds[email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	u := ur.users[id]
	return &u, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return &u, nil
}

func (ur *FakeUserRepo) GetProviderTokens(_ context.Context, id string) (users.ProviderTokenState, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ProviderTokenState{}, apperr.ErrUserNotFound
	}
	return u.Provider, nil
}

func (ur *FakeUserRepo) UpdateProviderTokens(_ context.Context, id string, state users.ProviderTokenState) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.FailUpdates {
		return apperr.Wrapf(apperr.ErrPersistence, "fake update for %s", id)
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("fake update for %s: %w: %v", id, apperr.ErrInvalidRequest, err)
	}
	u, ok := ur.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	u.Provider = state
	ur.users[id] = u
	return nil
}

// SetFailUpdates toggles FailUpdates under the repo lock.
func (ur *FakeUserRepo) SetFailUpdates(fail bool) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	ur.FailUpdates = fail
}
