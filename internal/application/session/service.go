package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/go-auth-nosql/internal/pkg/metrics"
	"github.com/go-auth-nosql/internal/pkg/token"
)

// Auth event labels.
const (
	eventRegister       = "register"
	eventLogin          = "login"
	eventRefresh        = "refresh"
	eventLogout         = "logout"
	eventChangePassword = "change_password"
)

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AccountView, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, error)
	Logout(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID string, req domain.ChangePasswordRequest) error
	Current(ctx context.Context, accountID string) (*domain.AccountView, error)
}

type accountStore interface {
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, u domain.AccountUpdate) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type tokenIssuer interface {
	IssueAccess(a *domain.Account) (string, time.Time, error)
	IssueRefresh(a *domain.Account) (string, time.Time, error)
	VerifyRefresh(tokenStr string) (*jwtinfra.Claims, error)
}

type verificationNotifier interface {
	VerifyEmail(ctx context.Context, a *domain.Account, secret string, ttl time.Duration)
}

type ServiceDeps struct {
	Accounts  accountStore
	Hasher    passwordHasher
	Tokens    tokenIssuer
	Notifier  verificationNotifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	SecretTTL time.Duration
	Now       func() time.Time
}

type service struct {
	accounts  accountStore
	hasher    passwordHasher
	tokens    tokenIssuer
	notifier  verificationNotifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	secretTTL time.Duration
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &service{
		accounts:  deps.Accounts,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		secretTTL: deps.SecretTTL,
		now:       deps.Now,
	}
}

// Register creates an unverified account together with its pending
// verification secret and mails the link. A failed delivery does not undo
// the registration.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (view *domain.AccountView, err error) {
	defer func() { s.metrics.RecordAuthEvent(eventRegister, err) }()

	email, username := domain.NormalizeIdentity(req.Email), domain.NormalizeIdentity(req.Username)
	if strings.Contains(username, "@") {
		return nil, fmt.Errorf("username must not contain '@': %w", domain.ErrBadRequest)
	}
	_, err = s.accounts.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		return nil, fmt.Errorf("register %s: %w", username, domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("register lookup: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w: %w", domain.ErrInternal, err)
	}
	plain, fingerprint, err := token.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w: %w", domain.ErrInternal, err)
	}

	now := s.now().UTC()
	expires := now.Add(s.secretTTL)
	a := &domain.Account{
		AccountID:             id.New(),
		Username:              username,
		Email:                 email,
		PasswordHash:          hash,
		VerificationHash:      fingerprint,
		VerificationExpiresAt: &expires,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account registered", "account_id", a.AccountID)

	s.notifier.VerifyEmail(ctx, a, plain, s.secretTTL)
	return a.Sanitize(), nil
}

// Login checks the password before the verified gate so an unverified
// account is only revealed to someone who knows its password.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (sess *domain.Session, err error) {
	defer func() { s.metrics.RecordAuthEvent(eventLogin, err) }()

	subject := domain.NormalizeIdentity(req.Subject())
	if subject == "" {
		return nil, fmt.Errorf("email or username is required: %w", domain.ErrBadRequest)
	}
	// Usernames cannot contain '@', so the subject names exactly one field.
	email, username := "", subject
	if strings.Contains(subject, "@") {
		email, username = subject, ""
	}
	a, err := s.accounts.FindByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !s.hasher.Verify(req.Password, a.PasswordHash) {
		return nil, fmt.Errorf("login %s: %w", a.AccountID, domain.ErrInvalidCredentials)
	}
	if !a.EmailVerified {
		return nil, fmt.Errorf("login %s: %w", a.AccountID, domain.ErrEmailNotVerified)
	}
	// Last writer wins: a new login replaces any previous session.
	return s.issue(ctx, a, nil)
}

// Refresh rotates the pair. The stored fingerprint is swapped only if it
// still equals the presented token's, so of two concurrent rotations one
// fails with ErrTokenReused.
func (s *service) Refresh(ctx context.Context, refreshToken string) (sess *domain.Session, err error) {
	defer func() { s.metrics.RecordAuthEvent(eventRefresh, err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token missing: %w", domain.ErrUnauthorized)
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	a, err := s.accounts.FindByID(ctx, claims.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("refresh %s: %w", claims.AccountID, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	presented := token.Fingerprint(refreshToken)
	if a.RefreshTokenHash == "" || !token.Equal(a.RefreshTokenHash, presented) {
		s.logger.Warn("refresh token reuse", "account_id", a.AccountID)
		return nil, fmt.Errorf("refresh %s: %w", a.AccountID, domain.ErrTokenReused)
	}

	sess, err = s.issue(ctx, a, &presented)
	switch {
	case errors.Is(err, domain.ErrPreconditionFailed):
		return nil, fmt.Errorf("refresh %s: %w", a.AccountID, domain.ErrTokenReused)
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("refresh %s: %w", a.AccountID, domain.ErrUnauthorized)
	}
	return sess, err
}

// issue signs a new pair and commits its refresh fingerprint. Nothing is
// returned unless the store accepted the write.
func (s *service) issue(ctx context.Context, a *domain.Account, expected *string) (*domain.Session, error) {
	access, accessExp, err := s.tokens.IssueAccess(a)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w: %w", domain.ErrInternal, err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(a)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w: %w", domain.ErrInternal, err)
	}
	fingerprint := token.Fingerprint(refresh)
	if err := s.accounts.Update(ctx, a.AccountID, domain.AccountUpdate{
		RefreshTokenHash:   &fingerprint,
		IfRefreshTokenHash: expected,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	a.RefreshTokenHash = fingerprint
	return &domain.Session{
		Tokens: domain.TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExp,
		},
		Account: a.Sanitize(),
	}, nil
}

// Logout clears the stored refresh fingerprint. Repeating it is harmless.
func (s *service) Logout(ctx context.Context, accountID string) (err error) {
	defer func() { s.metrics.RecordAuthEvent(eventLogout, err) }()

	cleared := ""
	if err := s.accounts.Update(ctx, accountID, domain.AccountUpdate{RefreshTokenHash: &cleared}); err != nil {
		return fmt.Errorf("logout %s: %w", accountID, err)
	}
	return nil
}

// ChangePassword replaces the password hash. The current refresh token stays valid.
func (s *service) ChangePassword(ctx context.Context, accountID string, req domain.ChangePasswordRequest) (err error) {
	defer func() { s.metrics.RecordAuthEvent(eventChangePassword, err) }()

	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !s.hasher.Verify(req.OldPassword, a.PasswordHash) {
		return fmt.Errorf("old password is incorrect: %w", domain.ErrInvalidCredentials)
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w: %w", domain.ErrInternal, err)
	}
	if err := s.accounts.Update(ctx, accountID, domain.AccountUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

func (s *service) Current(ctx context.Context, accountID string) (*domain.AccountView, error) {
	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("current account: %w", err)
	}
	return a.Sanitize(), nil
}
