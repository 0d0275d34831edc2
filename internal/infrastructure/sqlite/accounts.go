// Package sqlite is the single-file account store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/sqlite/migrations"
	"github.com/go-auth-nosql/internal/infrastructure/sqlutil"
	"github.com/go-auth-nosql/internal/pkg/backoff"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
	_ "modernc.org/sqlite"
)

const accountsTable = "accounts"

// Times are stored as unix nanoseconds.
var dialect = sqlutil.Dialect{
	Placeholder: func(int) string { return "?" },
	Time:        func(t time.Time) any { return t.UnixNano() },
}

var selectAccount = "SELECT " + strings.Join(sqlutil.Columns, ", ") + " FROM " + accountsTable

// Store owns the database handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, dsn string, attempts int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	// One writer keeps conditional updates serialised.
	db.SetMaxOpenConns(1)
	if err := backoff.Ping(ctx, "sqlite", attempts, db.PingContext); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_UNREACHABLE").Wrap(err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_PRAGMA_FAILED").Wrap(err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ApplyMigrations applies the embedded schema.
func (s *Store) ApplyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}
	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, selectAccount+" WHERE account_id = ?", accountID))
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("account_id", accountID).Wrap(err)
	}
	return a, nil
}

func (s *Store) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.Account, error) {
	email, username = domain.NormalizeIdentity(email), domain.NormalizeIdentity(username)
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		selectAccount+" WHERE (? <> '' AND email = ?) OR (? <> '' AND username = ?) ORDER BY (email = ?) DESC, created_at LIMIT 1",
		email, email, username, username, email))
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("email", email).With("username", username).Wrap(err)
	}
	return a, nil
}

func (s *Store) FindBySecretHash(ctx context.Context, kind domain.SecretKind, hash string) (*domain.Account, error) {
	col, err := sqlutil.SecretColumn(kind)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, fmt.Errorf("empty %s hash: %w", kind, domain.ErrNotFound)
	}
	a, err := scanAccount(s.db.QueryRowContext(ctx, selectAccount+" WHERE "+col+" = ?", hash))
	if err != nil {
		return nil, oops.Code("ACCOUNT_SECRET_LOOKUP_FAILED").With("kind", string(kind)).Wrap(err)
	}
	return a, nil
}

func (s *Store) Create(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, username, email, password_hash, email_verified, refresh_token_hash,
			verification_hash, verification_expires_at, reset_hash, reset_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.AccountID, a.Username, a.Email, a.PasswordHash, a.EmailVerified, a.RefreshTokenHash,
		sqlutil.NullString(a.VerificationHash), unixOrNil(a.VerificationExpiresAt),
		sqlutil.NullString(a.ResetHash), unixOrNil(a.ResetExpiresAt),
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("ACCOUNT_CONFLICT").With("username", a.Username).Wrap(domain.ErrConflict)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").With("account_id", a.AccountID).Wrap(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, accountID string, u domain.AccountUpdate) error {
	up, err := sqlutil.BuildUpdate(dialect, accountsTable, accountID, u, s.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_INVALID").Wrap(err)
	}
	res, err := s.db.ExecContext(ctx, up.SQL, up.Args...)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if n > 0 {
		return nil
	}
	if !sqlutil.HasPreconditions(u) {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = ?)", accountID).Scan(&exists); err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if !exists {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return fmt.Errorf("update account %s: %w", accountID, domain.ErrPreconditionFailed)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var verificationHash, resetHash sql.NullString
	var verificationExp, resetExp sql.NullInt64
	var created, updated int64
	err := row.Scan(
		&a.AccountID, &a.Username, &a.Email, &a.PasswordHash, &a.EmailVerified, &a.RefreshTokenHash,
		&verificationHash, &verificationExp, &resetHash, &resetExp,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.VerificationHash = verificationHash.String
	a.VerificationExpiresAt = timeOrNil(verificationExp)
	a.ResetHash = resetHash.String
	a.ResetExpiresAt = timeOrNil(resetExp)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return &a, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
