package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// CredentialStore is the subset of Users needed to verify credentials
type CredentialStore interface {
	FindActiveByEmail(ctx context.Context, email string) (*User, error)
}

// UserProvider verifies credentials against the credential store
type UserProvider struct {
	store  CredentialStore
	logger Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store CredentialStore) *UserProvider {
	return &UserProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// VerifyIdentity finds the active user and compares the password. An unknown
// email and a wrong password both return ErrInvalidCredentials.
func (u *UserProvider) VerifyIdentity(ctx context.Context, email, password string) (*User, error) {
	user, err := u.store.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !VerifyPassword(password, user.PasswordHash) {
		u.logger.Debug("password mismatch", "user_id", user.ID.String())
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
