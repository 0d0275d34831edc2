// Package sqlutil builds the account statements shared by the SQL stores.
package sqlutil

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// Column names of the accounts table.
const (
	ColAccountID             = "account_id"
	ColUsername              = "username"
	ColEmail                 = "email"
	ColPasswordHash          = "password_hash"
	ColEmailVerified         = "email_verified"
	ColRefreshTokenHash      = "refresh_token_hash"
	ColVerificationHash      = "verification_hash"
	ColVerificationExpiresAt = "verification_expires_at"
	ColResetHash             = "reset_hash"
	ColResetExpiresAt        = "reset_expires_at"
	ColCreatedAt             = "created_at"
	ColUpdatedAt             = "updated_at"
)

// Columns lists every column in scan order.
var Columns = []string{
	ColAccountID, ColUsername, ColEmail, ColPasswordHash, ColEmailVerified, ColRefreshTokenHash,
	ColVerificationHash, ColVerificationExpiresAt, ColResetHash, ColResetExpiresAt,
	ColCreatedAt, ColUpdatedAt,
}

var ErrNoFields = errors.New("no fields to update")

// Dialect adapts placeholders and value encodings to one database.
type Dialect struct {
	Placeholder func(n int) string
	Time        func(t time.Time) any
}

// Update is a compiled UPDATE statement.
type Update struct {
	SQL  string
	Args []any
}

// BuildUpdate compiles u into an UPDATE on table keyed by account id.
// Preconditions become extra WHERE terms so the write is a single compare-and-swap.
func BuildUpdate(d Dialect, table, accountID string, u domain.AccountUpdate, now time.Time) (Update, error) {
	if u.Empty() {
		return Update{}, ErrNoFields
	}
	var sets, where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}
	set := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = %s", col, arg(v)))
	}

	if u.PasswordHash != nil {
		set(ColPasswordHash, *u.PasswordHash)
	}
	if u.EmailVerified != nil {
		set(ColEmailVerified, *u.EmailVerified)
	}
	if u.RefreshTokenHash != nil {
		set(ColRefreshTokenHash, *u.RefreshTokenHash)
	}
	if u.Verification != nil {
		h, exp := pendingArgs(d, *u.Verification)
		set(ColVerificationHash, h)
		set(ColVerificationExpiresAt, exp)
	}
	if u.Reset != nil {
		h, exp := pendingArgs(d, *u.Reset)
		set(ColResetHash, h)
		set(ColResetExpiresAt, exp)
	}
	set(ColUpdatedAt, d.Time(now))

	where = append(where, fmt.Sprintf("%s = %s", ColAccountID, arg(accountID)))
	if u.IfRefreshTokenHash != nil {
		where = append(where, fmt.Sprintf("%s = %s", ColRefreshTokenHash, arg(*u.IfRefreshTokenHash)))
	}
	if u.IfVerificationHash != nil {
		where = append(where, fmt.Sprintf("COALESCE(%s, '') = %s", ColVerificationHash, arg(*u.IfVerificationHash)))
	}
	if u.IfResetHash != nil {
		where = append(where, fmt.Sprintf("COALESCE(%s, '') = %s", ColResetHash, arg(*u.IfResetHash)))
	}

	return Update{
		SQL:  fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(where, " AND ")),
		Args: args,
	}, nil
}

// HasPreconditions reports whether a zero-row update may mean a lost race rather than a missing row.
func HasPreconditions(u domain.AccountUpdate) bool {
	return u.IfRefreshTokenHash != nil || u.IfVerificationHash != nil || u.IfResetHash != nil
}

// SecretColumn maps a secret kind to its hash column.
func SecretColumn(kind domain.SecretKind) (string, error) {
	switch kind {
	case domain.SecretVerification:
		return ColVerificationHash, nil
	case domain.SecretReset:
		return ColResetHash, nil
	}
	return "", fmt.Errorf("unknown secret kind %q: %w", kind, domain.ErrBadRequest)
}

// NullString maps "" to SQL NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pendingArgs(d Dialect, p domain.PendingSecret) (hash, expires any) {
	if p.IsZero() {
		return nil, nil
	}
	return p.Hash, d.Time(p.ExpiresAt)
}
