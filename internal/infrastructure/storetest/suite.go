// Package storetest holds the behavioural checks every account store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the account store contract.
type Store interface {
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error)
	FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, u domain.AccountUpdate) error
}

// NewAccount returns an unverified account with a pending verification secret.
func NewAccount(username string) *domain.Account {
	now := time.Now().UTC().Truncate(time.Second)
	exp := now.Add(10 * time.Minute)
	return &domain.Account{
		AccountID:             id.New(),
		Username:              username,
		Email:                 username + "@example.com",
		PasswordHash:          "$2a$10$hash",
		VerificationHash:      "verify-" + username,
		VerificationExpiresAt: &exp,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func ptr[T any](v T) *T { return &v }

// Run exercises s. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := NewAccount("alice")
		require.NoError(t, s.Create(ctx, a))

		got, err := s.FindByID(ctx, a.AccountID)
		require.NoError(t, err)
		assert.Equal(t, a.Email, got.Email)
		assert.Equal(t, a.PasswordHash, got.PasswordHash)
		assert.False(t, got.EmailVerified)
		require.NotNil(t, got.VerificationExpiresAt)
		assert.True(t, a.VerificationExpiresAt.Equal(*got.VerificationExpiresAt))

		byEmail, err := s.FindByEmailOrUsername(ctx, a.Email, "")
		require.NoError(t, err)
		assert.Equal(t, a.AccountID, byEmail.AccountID)

		byName, err := s.FindByEmailOrUsername(ctx, "", a.Username)
		require.NoError(t, err)
		assert.Equal(t, a.AccountID, byName.AccountID)

		bySecret, err := s.FindBySecretHash(ctx, domain.SecretVerification, a.VerificationHash)
		require.NoError(t, err)
		assert.Equal(t, a.AccountID, bySecret.AccountID)
	})

	t.Run("FindMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.FindByID(ctx, id.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.FindByEmailOrUsername(ctx, "ghost@example.com", "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.FindBySecretHash(ctx, domain.SecretReset, "nothing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CreateConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("bob")))

		sameEmail := NewAccount("bobby")
		sameEmail.Email = "bob@example.com"
		sameEmail.VerificationHash = "other-1"
		assert.ErrorIs(t, s.Create(ctx, sameEmail), domain.ErrConflict)

		sameName := NewAccount("bob")
		sameName.Email = "different@example.com"
		sameName.VerificationHash = "other-2"
		assert.ErrorIs(t, s.Create(ctx, sameName), domain.ErrConflict)

		_, err := s.FindByEmailOrUsername(ctx, "different@example.com", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmailMatchWinsOverUsername", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		squatter := NewAccount("squatter")
		squatter.Username = "bob@example.com"
		squatter.CreatedAt = squatter.CreatedAt.Add(-time.Hour)
		require.NoError(t, s.Create(ctx, squatter))
		bob := NewAccount("bob")
		require.NoError(t, s.Create(ctx, bob))

		for i := 0; i < 10; i++ {
			got, err := s.FindByEmailOrUsername(ctx, "bob@example.com", "bob@example.com")
			require.NoError(t, err)
			assert.Equal(t, bob.AccountID, got.AccountID)
		}
	})

	t.Run("UpdateFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := NewAccount("carol")
		require.NoError(t, s.Create(ctx, a))

		resetExp := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second)
		require.NoError(t, s.Update(ctx, a.AccountID, domain.AccountUpdate{
			PasswordHash:     ptr("$2a$10$new"),
			EmailVerified:    ptr(true),
			RefreshTokenHash: ptr("refresh-1"),
			Verification:     &domain.PendingSecret{},
			Reset:            &domain.PendingSecret{Hash: "reset-1", ExpiresAt: resetExp},
		}))

		got, err := s.FindByID(ctx, a.AccountID)
		require.NoError(t, err)
		assert.Equal(t, "$2a$10$new", got.PasswordHash)
		assert.True(t, got.EmailVerified)
		assert.Equal(t, "refresh-1", got.RefreshTokenHash)
		assert.Empty(t, got.VerificationHash)
		assert.Nil(t, got.VerificationExpiresAt)
		assert.Equal(t, "reset-1", got.ResetHash)
		require.NotNil(t, got.ResetExpiresAt)
		assert.True(t, resetExp.Equal(*got.ResetExpiresAt))

		_, err = s.FindBySecretHash(ctx, domain.SecretVerification, a.VerificationHash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		bySecret, err := s.FindBySecretHash(ctx, domain.SecretReset, "reset-1")
		require.NoError(t, err)
		assert.Equal(t, a.AccountID, bySecret.AccountID)

		require.NoError(t, s.Update(ctx, a.AccountID, domain.AccountUpdate{RefreshTokenHash: ptr("")}))
		got, err = s.FindByID(ctx, a.AccountID)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshTokenHash)
	})

	t.Run("UpdatePreconditions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := NewAccount("dave")
		require.NoError(t, s.Create(ctx, a))

		require.NoError(t, s.Update(ctx, a.AccountID, domain.AccountUpdate{
			RefreshTokenHash:   ptr("r2"),
			IfRefreshTokenHash: ptr(""),
		}))
		err := s.Update(ctx, a.AccountID, domain.AccountUpdate{
			RefreshTokenHash:   ptr("r3"),
			IfRefreshTokenHash: ptr("r1"),
		})
		assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

		got, err := s.FindByID(ctx, a.AccountID)
		require.NoError(t, err)
		assert.Equal(t, "r2", got.RefreshTokenHash)

		require.NoError(t, s.Update(ctx, a.AccountID, domain.AccountUpdate{
			EmailVerified:      ptr(true),
			Verification:       &domain.PendingSecret{},
			IfVerificationHash: ptr(a.VerificationHash),
		}))
		err = s.Update(ctx, a.AccountID, domain.AccountUpdate{
			EmailVerified:      ptr(true),
			Verification:       &domain.PendingSecret{},
			IfVerificationHash: ptr(a.VerificationHash),
		})
		assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), id.New(), domain.AccountUpdate{EmailVerified: ptr(true)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
