package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error) {
	args := m.Called(ctx, email, username)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) Create(ctx context.Context, a *domain.Account) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockAccountStore) Update(ctx context.Context, accountID string, u domain.AccountUpdate) error {
	return m.Called(ctx, accountID, u).Error(0)
}

type mockHasher struct{ mock.Mock }

func (m *mockHasher) Hash(plain string) (string, error) {
	args := m.Called(plain)
	return args.String(0), args.Error(1)
}
func (m *mockHasher) Verify(plain, digest string) bool {
	return m.Called(plain, digest).Bool(0)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) IssueAccess(a *domain.Account) (string, time.Time, error) {
	args := m.Called(a)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}
func (m *mockTokens) IssueRefresh(a *domain.Account) (string, time.Time, error) {
	args := m.Called(a)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}
func (m *mockTokens) VerifyRefresh(tokenStr string) (*jwtinfra.Claims, error) {
	args := m.Called(tokenStr)
	if c, _ := args.Get(0).(*jwtinfra.Claims); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) VerifyEmail(ctx context.Context, a *domain.Account, secret string, ttl time.Duration) {
	m.Called(ctx, a, secret, ttl)
}

// --- helpers ---

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	accounts *mockAccountStore
	hasher   *mockHasher
	tokens   *mockTokens
	notifier *mockNotifier
	svc      Service
}

func newFixture() *fixture {
	f := &fixture{&mockAccountStore{}, &mockHasher{}, &mockTokens{}, &mockNotifier{}, nil}
	f.svc = NewService(ServiceDeps{
		Accounts:  f.accounts,
		Hasher:    f.hasher,
		Tokens:    f.tokens,
		Notifier:  f.notifier,
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		SecretTTL: 10 * time.Minute,
		Now:       func() time.Time { return now },
	})
	return f
}

func (f *fixture) stubIssue() {
	f.tokens.On("IssueAccess", mock.Anything).Return("access-jwt", now.Add(15*time.Minute), nil)
	f.tokens.On("IssueRefresh", mock.Anything).Return("refresh-jwt", now.Add(7*24*time.Hour), nil)
}

func verifiedAccount() *domain.Account {
	return &domain.Account{
		AccountID:     "acc-1",
		Username:      "alice",
		Email:         "a@x.com",
		PasswordHash:  "$2a$10$digest",
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, "a@x.com", "alice").Return(nil, domain.ErrNotFound)
	f.hasher.On("Hash", "secret123").Return("$2a$10$digest", nil)
	var created *domain.Account
	f.accounts.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.Account) }).
		Return(nil)
	var sentSecret string
	f.notifier.On("VerifyEmail", mock.Anything, mock.Anything, mock.AnythingOfType("string"), 10*time.Minute).
		Run(func(args mock.Arguments) { sentSecret = args.String(2) })

	view, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Email: " A@X.com", Username: "Alice", Password: "secret123",
	})

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", view.Email)
	assert.Equal(t, "alice", view.Username)
	assert.False(t, view.EmailVerified)

	require.NotNil(t, created)
	assert.Equal(t, "$2a$10$digest", created.PasswordHash)
	assert.False(t, created.EmailVerified)
	require.NotNil(t, created.VerificationExpiresAt)
	assert.Equal(t, now.Add(10*time.Minute), *created.VerificationExpiresAt)
	assert.Equal(t, token.Fingerprint(sentSecret), created.VerificationHash)
	assert.NotEqual(t, sentSecret, created.VerificationHash)
}

func TestRegister_Conflict(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, "a@x.com", "alice").Return(verifiedAccount(), nil)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{Email: "a@x.com", Username: "alice", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "VerifyEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_UsernameWithAt(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{Email: "evil@x.com", Username: "bob@x.com", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	f.accounts.AssertNotCalled(t, "FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_ConflictOnCreateRace(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	f.hasher.On("Hash", mock.Anything).Return("digest", nil)
	f.accounts.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{Email: "a@x.com", Username: "alice", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.notifier.AssertNotCalled(t, "VerifyEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_HashFailureIsInternal(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	f.hasher.On("Hash", mock.Anything).Return("", errors.New("cost out of range"))

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{Email: "a@x.com", Username: "alice", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrInternal)
	assert.ErrorContains(t, err, "cost out of range")
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, "a@x.com", "").Return(a, nil)
	f.hasher.On("Verify", "secret123", a.PasswordHash).Return(true)
	f.stubIssue()
	f.accounts.On("Update", mock.Anything, "acc-1", mock.MatchedBy(func(u domain.AccountUpdate) bool {
		return u.RefreshTokenHash != nil && *u.RefreshTokenHash == token.Fingerprint("refresh-jwt") && u.IfRefreshTokenHash == nil
	})).Return(nil)

	sess, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: "A@x.com", Password: "secret123"})

	require.NoError(t, err)
	assert.Equal(t, "access-jwt", sess.Tokens.AccessToken)
	assert.Equal(t, "refresh-jwt", sess.Tokens.RefreshToken)
	assert.Equal(t, "alice", sess.Account.Username)
}

func TestLogin_NotFound(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, "", "ghost").Return(nil, domain.ErrNotFound)

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Identifier: "ghost", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLogin_EmailSubjectSkipsUsernameLookup(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, "a@x.com", "").Return(a, nil)
	f.hasher.On("Verify", "secret123", a.PasswordHash).Return(true)
	f.stubIssue()
	f.accounts.On("Update", mock.Anything, "acc-1", mock.Anything).Return(nil)

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Identifier: "a@x.com", Password: "secret123"})
	require.NoError(t, err)
	f.accounts.AssertNotCalled(t, "FindByEmailOrUsername", mock.Anything, mock.Anything, "a@x.com")
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything).Return(a, nil)
	f.hasher.On("Verify", "wrong", a.PasswordHash).Return(false)

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	f.tokens.AssertNotCalled(t, "IssueAccess", mock.Anything)
}

func TestLogin_Unverified(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.EmailVerified = false
	f.accounts.On("FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything).Return(a, nil)
	f.hasher.On("Verify", mock.Anything, mock.Anything).Return(true)

	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrEmailNotVerified)
	f.tokens.AssertNotCalled(t, "IssueAccess", mock.Anything)
}

func TestLogin_FailsClosedWhenStoreRejects(t *testing.T) {
	f := newFixture()
	f.accounts.On("FindByEmailOrUsername", mock.Anything, mock.Anything, mock.Anything).Return(verifiedAccount(), nil)
	f.hasher.On("Verify", mock.Anything, mock.Anything).Return(true)
	f.stubIssue()
	f.accounts.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	sess, err := f.svc.Login(context.Background(), domain.LoginRequest{Username: "alice", Password: "secret123"})
	require.Error(t, err)
	assert.Nil(t, sess)
}

func TestLogin_MissingIdentifier(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Login(context.Background(), domain.LoginRequest{Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- Refresh ---

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.RefreshTokenHash = token.Fingerprint("old-refresh")
	f.tokens.On("VerifyRefresh", "old-refresh").Return(&jwtinfra.Claims{AccountID: "acc-1"}, nil)
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)
	f.stubIssue()
	f.accounts.On("Update", mock.Anything, "acc-1", mock.MatchedBy(func(u domain.AccountUpdate) bool {
		return u.IfRefreshTokenHash != nil && *u.IfRefreshTokenHash == token.Fingerprint("old-refresh") &&
			*u.RefreshTokenHash == token.Fingerprint("refresh-jwt")
	})).Return(nil)

	sess, err := f.svc.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "refresh-jwt", sess.Tokens.RefreshToken)
	f.accounts.AssertExpectations(t)
}

func TestRefresh_Empty(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefresh_VerificationErrorsPassThrough(t *testing.T) {
	for _, sentinel := range []error{domain.ErrTokenExpired, domain.ErrBadSignature, domain.ErrMalformedToken} {
		f := newFixture()
		f.tokens.On("VerifyRefresh", "tok").Return(nil, sentinel)
		_, err := f.svc.Refresh(context.Background(), "tok")
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestRefresh_AccountGone(t *testing.T) {
	f := newFixture()
	f.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.Claims{AccountID: "acc-1"}, nil)
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(nil, domain.ErrNotFound)

	_, err := f.svc.Refresh(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRefresh_StaleToken(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.RefreshTokenHash = token.Fingerprint("newer")
	f.tokens.On("VerifyRefresh", "older").Return(&jwtinfra.Claims{AccountID: "acc-1"}, nil)
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)

	_, err := f.svc.Refresh(context.Background(), "older")
	assert.ErrorIs(t, err, domain.ErrTokenReused)
	f.tokens.AssertNotCalled(t, "IssueAccess", mock.Anything)
}

func TestRefresh_AfterLogout(t *testing.T) {
	f := newFixture()
	f.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.Claims{AccountID: "acc-1"}, nil)
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(verifiedAccount(), nil)

	_, err := f.svc.Refresh(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrTokenReused)
}

func TestRefresh_LostRace(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.RefreshTokenHash = token.Fingerprint("tok")
	f.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.Claims{AccountID: "acc-1"}, nil)
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)
	f.stubIssue()
	f.accounts.On("Update", mock.Anything, "acc-1", mock.Anything).Return(domain.ErrPreconditionFailed)

	sess, err := f.svc.Refresh(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrTokenReused)
	assert.Nil(t, sess)
}

// --- Logout / ChangePassword / Current ---

func TestLogout_ClearsRefreshHash(t *testing.T) {
	f := newFixture()
	f.accounts.On("Update", mock.Anything, "acc-1", mock.MatchedBy(func(u domain.AccountUpdate) bool {
		return u.RefreshTokenHash != nil && *u.RefreshTokenHash == "" && u.IfRefreshTokenHash == nil
	})).Return(nil).Twice()

	require.NoError(t, f.svc.Logout(context.Background(), "acc-1"))
	require.NoError(t, f.svc.Logout(context.Background(), "acc-1"))
	f.accounts.AssertExpectations(t)
}

func TestChangePassword_Success(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.RefreshTokenHash = "keep"
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)
	f.hasher.On("Verify", "old-pass", a.PasswordHash).Return(true)
	f.hasher.On("Hash", "new-pass-1").Return("$2a$10$new", nil)
	f.accounts.On("Update", mock.Anything, "acc-1", mock.MatchedBy(func(u domain.AccountUpdate) bool {
		return u.PasswordHash != nil && *u.PasswordHash == "$2a$10$new" && u.RefreshTokenHash == nil
	})).Return(nil)

	err := f.svc.ChangePassword(context.Background(), "acc-1", domain.ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass-1"})
	require.NoError(t, err)
	f.accounts.AssertExpectations(t)
}

func TestChangePassword_WrongOld(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)
	f.hasher.On("Verify", "nope", a.PasswordHash).Return(false)

	err := f.svc.ChangePassword(context.Background(), "acc-1", domain.ChangePasswordRequest{OldPassword: "nope", NewPassword: "new-pass-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	f.accounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestCurrent_Sanitized(t *testing.T) {
	f := newFixture()
	a := verifiedAccount()
	a.RefreshTokenHash = "secret-fingerprint"
	f.accounts.On("FindByID", mock.Anything, "acc-1").Return(a, nil)

	view, err := f.svc.Current(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", view.AccountID)
	assert.Equal(t, "a@x.com", view.Email)
}
