package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/metrics"
)

// AccountStore is the contract every account backend (dynamo, postgres,
// sqlite, memory) satisfies.
type AccountStore interface {
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error)
	FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, u domain.AccountUpdate) error
}

// PasswordHasher digests and checks account passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// TokenProvider issues and verifies both signed token families.
type TokenProvider interface {
	IssueAccess(a *domain.Account) (string, time.Time, error)
	IssueRefresh(a *domain.Account) (string, time.Time, error)
	VerifyAccess(tokenStr string) (*jwtinfra.Claims, error)
	VerifyRefresh(tokenStr string) (*jwtinfra.Claims, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Accounts AccountStore
	Hasher   PasswordHasher
	Tokens   TokenProvider
	Sender   notify.Sender
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}
