package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/metrics"
	"github.com/go-auth-nosql/internal/pkg/token"
)

const (
	eventVerifyEmail        = "verify_email"
	eventResendVerification = "resend_verification"
	eventRequestReset       = "request_password_reset"
	eventCompleteReset      = "complete_password_reset"
)

type Service interface {
	VerifyEmail(ctx context.Context, secret string) (*domain.AccountView, error)
	ResendVerification(ctx context.Context, accountID string) error
	RequestVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, secret, newPassword string) error
}

type accountStore interface {
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error)
	FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, u domain.AccountUpdate) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

type notifier interface {
	VerifyEmail(ctx context.Context, a *domain.Account, secret string, ttl time.Duration)
	PasswordReset(ctx context.Context, a *domain.Account, secret string, ttl time.Duration)
}

type ServiceDeps struct {
	Accounts  accountStore
	Hasher    passwordHasher
	Notifier  notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	SecretTTL time.Duration
	Now       func() time.Time
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &service{deps: deps}
}

// VerifyEmail consumes a verification secret. Unknown, expired and already
// consumed secrets are indistinguishable to the caller.
func (s *service) VerifyEmail(ctx context.Context, secret string) (view *domain.AccountView, err error) {
	defer func() { s.deps.Metrics.RecordAuthEvent(eventVerifyEmail, err) }()

	a, fingerprint, err := s.consumable(ctx, domain.SecretVerification, secret)
	if err != nil {
		return nil, err
	}
	verified := true
	err = s.deps.Accounts.Update(ctx, a.AccountID, domain.AccountUpdate{
		EmailVerified:      &verified,
		Verification:       &domain.PendingSecret{},
		IfVerificationHash: &fingerprint,
	})
	if err != nil {
		return nil, consumeError("verify email", err)
	}
	a.Apply(domain.AccountUpdate{EmailVerified: &verified, Verification: &domain.PendingSecret{}}, s.deps.Now().UTC())
	return a.Sanitize(), nil
}

// ResendVerification overwrites any pending verification secret with a fresh one.
func (s *service) ResendVerification(ctx context.Context, accountID string) (err error) {
	defer func() { s.deps.Metrics.RecordAuthEvent(eventResendVerification, err) }()

	a, err := s.deps.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	return s.resend(ctx, a)
}

// RequestVerification is the unauthenticated form of ResendVerification. An
// unverified account cannot log in, so once its first link expires this is
// the only way to get a new one.
func (s *service) RequestVerification(ctx context.Context, email string) (err error) {
	defer func() { s.deps.Metrics.RecordAuthEvent(eventResendVerification, err) }()

	email = domain.NormalizeIdentity(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	a, err := s.deps.Accounts.FindByEmailOrUsername(ctx, email, "")
	if err != nil {
		return fmt.Errorf("request verification: %w", err)
	}
	return s.resend(ctx, a)
}

func (s *service) resend(ctx context.Context, a *domain.Account) error {
	if a.EmailVerified {
		return fmt.Errorf("resend verification %s: %w", a.AccountID, domain.ErrAlreadyVerified)
	}
	plain, pending, err := s.newSecret()
	if err != nil {
		return err
	}
	if err := s.deps.Accounts.Update(ctx, a.AccountID, domain.AccountUpdate{Verification: &pending}); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	s.deps.Notifier.VerifyEmail(ctx, a, plain, s.deps.SecretTTL)
	return nil
}

// RequestPasswordReset overwrites any pending reset secret and mails the reset link.
func (s *service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.deps.Metrics.RecordAuthEvent(eventRequestReset, err) }()

	email = domain.NormalizeIdentity(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	a, err := s.deps.Accounts.FindByEmailOrUsername(ctx, email, "")
	if err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	plain, pending, err := s.newSecret()
	if err != nil {
		return err
	}
	if err := s.deps.Accounts.Update(ctx, a.AccountID, domain.AccountUpdate{Reset: &pending}); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	s.deps.Notifier.PasswordReset(ctx, a, plain, s.deps.SecretTTL)
	return nil
}

// CompletePasswordReset consumes a reset secret and replaces the password in
// the same conditional write.
func (s *service) CompletePasswordReset(ctx context.Context, secret, newPassword string) (err error) {
	defer func() { s.deps.Metrics.RecordAuthEvent(eventCompleteReset, err) }()

	a, fingerprint, err := s.consumable(ctx, domain.SecretReset, secret)
	if err != nil {
		return err
	}
	hash, err := s.deps.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w: %w", domain.ErrInternal, err)
	}
	err = s.deps.Accounts.Update(ctx, a.AccountID, domain.AccountUpdate{
		PasswordHash: &hash,
		Reset:        &domain.PendingSecret{},
		IfResetHash:  &fingerprint,
	})
	if err != nil {
		return consumeError("reset password", err)
	}
	s.deps.Logger.Info("password reset", "account_id", a.AccountID)
	return nil
}

// consumable finds the account holding secret and checks it has not expired.
func (s *service) consumable(ctx context.Context, kind domain.SecretKind, secret string) (*domain.Account, string, error) {
	if secret == "" {
		return nil, "", fmt.Errorf("%s secret missing: %w", kind, domain.ErrInvalidOrExpired)
	}
	fingerprint := token.Fingerprint(secret)
	a, err := s.deps.Accounts.FindBySecretHash(ctx, kind, fingerprint)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", fmt.Errorf("%s secret: %w", kind, domain.ErrInvalidOrExpired)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s secret lookup: %w", kind, err)
	}
	if !a.Pending(kind).Valid(fingerprint, s.deps.Now()) {
		return nil, "", fmt.Errorf("%s secret for %s: %w", kind, a.AccountID, domain.ErrInvalidOrExpired)
	}
	return a, fingerprint, nil
}

func (s *service) newSecret() (string, domain.PendingSecret, error) {
	plain, fingerprint, err := token.NewSecret()
	if err != nil {
		return "", domain.PendingSecret{}, fmt.Errorf("generate secret: %w: %w", domain.ErrInternal, err)
	}
	return plain, domain.PendingSecret{
		Hash:      fingerprint,
		ExpiresAt: s.deps.Now().UTC().Add(s.deps.SecretTTL),
	}, nil
}

// consumeError maps a lost consumption race onto the same answer as an unknown secret.
func consumeError(op string, err error) error {
	if errors.Is(err, domain.ErrPreconditionFailed) || errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidOrExpired)
	}
	return fmt.Errorf("%s: %w", op, err)
}
