package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	auth "github.com/carely/go-auth"
)

func TestUserProviderVerifyIdentity(t *testing.T) {
	ctx := context.Background()

	user := &auth.User{
		ID:           uuid.New(),
		Email:        "test@example.com",
		PasswordHash: passwordHash(t),
		State:        auth.StateAvailable,
		Active:       true,
	}

	t.Run("Successful verification", func(t *testing.T) {
		store := new(MockCredentialStore)
		store.On("FindActiveByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(store)
		got, err := provider.VerifyIdentity(ctx, "test@example.com", testPassword)

		assert.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		store.AssertExpectations(t)
	})

	t.Run("Wrong password", func(t *testing.T) {
		store := new(MockCredentialStore)
		store.On("FindActiveByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(store)
		got, err := provider.VerifyIdentity(ctx, "test@example.com", "nope")

		assert.Nil(t, got)
		assert.Equal(t, auth.ErrInvalidCredentials, err)
		store.AssertExpectations(t)
	})

	t.Run("Unknown email looks like a wrong password", func(t *testing.T) {
		store := new(MockCredentialStore)
		store.On("FindActiveByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrUserNotFound).Once()

		provider := auth.NewUserProvider(store)
		got, err := provider.VerifyIdentity(ctx, "ghost@example.com", testPassword)

		assert.Nil(t, got)
		assert.Equal(t, auth.ErrInvalidCredentials, err)
		store.AssertExpectations(t)
	})

	t.Run("Store failure is internal", func(t *testing.T) {
		store := new(MockCredentialStore)
		store.On("FindActiveByEmail", mock.Anything, "test@example.com").Return(nil, errors.New("connection reset")).Once()

		provider := auth.NewUserProvider(store)
		got, err := provider.VerifyIdentity(ctx, "test@example.com", testPassword)

		assert.Nil(t, got)
		assert.Error(t, err)
		assert.False(t, auth.HasTextCode(err, auth.TextCodeInvalidCreds))
		store.AssertExpectations(t)
	})
}
