// Package postgres is the PostgreSQL account store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/sqlutil"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

const accountsTable = "accounts"

// poolIface is satisfied by *pgxpool.Pool and pgxmock pools.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var dialect = sqlutil.Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Time:        func(t time.Time) any { return t.UTC() },
}

var selectAccount = "SELECT " + strings.Join(sqlutil.Columns, ", ") + " FROM " + accountsTable

// AccountRepo implements the account store on PostgreSQL.
type AccountRepo struct {
	pool poolIface
	now  func() time.Time
}

func NewAccountRepo(pool poolIface) *AccountRepo {
	return &AccountRepo{pool: pool, now: time.Now}
}

func (r *AccountRepo) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+" WHERE account_id = $1", accountID))
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("account_id", accountID).Wrap(err)
	}
	return a, nil
}

func (r *AccountRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error) {
	email, username = domain.NormalizeIdentity(email), domain.NormalizeIdentity(username)
	a, err := scanAccount(r.pool.QueryRow(ctx,
		selectAccount+" WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND username = $2) ORDER BY (email = $1) DESC, created_at LIMIT 1",
		email, username))
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("email", email).With("username", username).Wrap(err)
	}
	return a, nil
}

func (r *AccountRepo) FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error) {
	col, err := sqlutil.SecretColumn(kind)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, fmt.Errorf("empty %s hash: %w", kind, domain.ErrNotFound)
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+" WHERE "+col+" = $1", hash))
	if err != nil {
		return nil, oops.Code("ACCOUNT_SECRET_LOOKUP_FAILED").With("kind", string(kind)).Wrap(err)
	}
	return a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (account_id, username, email, password_hash, email_verified, refresh_token_hash,
			verification_hash, verification_expires_at, reset_hash, reset_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.AccountID, a.Username, a.Email, a.PasswordHash, a.EmailVerified, a.RefreshTokenHash,
		sqlutil.NullString(a.VerificationHash), a.VerificationExpiresAt,
		sqlutil.NullString(a.ResetHash), a.ResetExpiresAt,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_CONFLICT").
				With("constraint", pgErr.ConstraintName).
				With("username", a.Username).
				Wrap(domain.ErrConflict)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").With("account_id", a.AccountID).Wrap(err)
	}
	return nil
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, u domain.AccountUpdate) error {
	up, err := sqlutil.BuildUpdate(dialect, accountsTable, accountID, u, r.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_INVALID").Wrap(err)
	}
	tag, err := r.pool.Exec(ctx, up.SQL, up.Args...)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if !sqlutil.HasPreconditions(u) {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)", accountID).Scan(&exists); err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if !exists {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return fmt.Errorf("update account %s: %w", accountID, domain.ErrPreconditionFailed)
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var verificationHash, resetHash *string
	err := row.Scan(
		&a.AccountID, &a.Username, &a.Email, &a.PasswordHash, &a.EmailVerified, &a.RefreshTokenHash,
		&verificationHash, &a.VerificationExpiresAt, &resetHash, &a.ResetExpiresAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if verificationHash != nil {
		a.VerificationHash = *verificationHash
	}
	if resetHash != nil {
		a.ResetHash = *resetHash
	}
	return &a, nil
}
