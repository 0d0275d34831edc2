package domain

import (
	"strings"
	"time"
)

// Account is the persisted credential record. Secrets are only ever stored as
// fingerprints; plaintext values never reach the store.
type Account struct {
	AccountID             string     `json:"id" dynamodbav:"account_id"`
	Username              string     `json:"username" dynamodbav:"username"`
	Email                 string     `json:"email" dynamodbav:"email"`
	PasswordHash          string     `json:"-" dynamodbav:"password_hash"`
	EmailVerified         bool       `json:"email_verified" dynamodbav:"email_verified"`
	RefreshTokenHash      string     `json:"-" dynamodbav:"refresh_token_hash,omitempty"`
	VerificationHash      string     `json:"-" dynamodbav:"verification_hash,omitempty"`
	VerificationExpiresAt *time.Time `json:"-" dynamodbav:"verification_expires_at,omitempty"`
	ResetHash             string     `json:"-" dynamodbav:"reset_hash,omitempty"`
	ResetExpiresAt        *time.Time `json:"-" dynamodbav:"reset_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

// AccountView is the sanitized projection returned to callers.
type AccountView struct {
	AccountID     string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Sanitize strips every credential field.
func (a *Account) Sanitize() *AccountView {
	if a == nil {
		return nil
	}
	return &AccountView{
		AccountID:     a.AccountID,
		Username:      a.Username,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Pending returns the outstanding secret of the given kind.
func (a *Account) Pending(kind SecretKind) PendingSecret {
	switch kind {
	case SecretVerification:
		return PendingSecret{Hash: a.VerificationHash, ExpiresAt: deref(a.VerificationExpiresAt)}
	case SecretReset:
		return PendingSecret{Hash: a.ResetHash, ExpiresAt: deref(a.ResetExpiresAt)}
	}
	return PendingSecret{}
}

// Apply mutates a in place with the fields set on u. Used by stores that keep
// whole records (memory) and by tests.
func (a *Account) Apply(u AccountUpdate, now time.Time) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.EmailVerified != nil {
		a.EmailVerified = *u.EmailVerified
	}
	if u.RefreshTokenHash != nil {
		a.RefreshTokenHash = *u.RefreshTokenHash
	}
	if u.Verification != nil {
		a.VerificationHash, a.VerificationExpiresAt = u.Verification.fields()
	}
	if u.Reset != nil {
		a.ResetHash, a.ResetExpiresAt = u.Reset.fields()
	}
	a.UpdatedAt = now
}

// NormalizeIdentity trims and lower-cases an email or username before any lookup or write.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AccountUpdate is a partial update. Nil fields are left untouched.
// The If* fields are preconditions on the current stored value; when any of
// them does not hold the store returns ErrPreconditionFailed and writes nothing.
type AccountUpdate struct {
	PasswordHash     *string
	EmailVerified    *bool
	RefreshTokenHash *string // "" clears the session
	Verification     *PendingSecret
	Reset            *PendingSecret

	IfRefreshTokenHash *string
	IfVerificationHash *string
	IfResetHash        *string
}

// Empty reports whether u would change nothing.
func (u AccountUpdate) Empty() bool {
	return u.PasswordHash == nil && u.EmailVerified == nil && u.RefreshTokenHash == nil &&
		u.Verification == nil && u.Reset == nil
}

// Holds reports whether every precondition of u is satisfied by a.
func (u AccountUpdate) Holds(a *Account) bool {
	if u.IfRefreshTokenHash != nil && a.RefreshTokenHash != *u.IfRefreshTokenHash {
		return false
	}
	if u.IfVerificationHash != nil && a.VerificationHash != *u.IfVerificationHash {
		return false
	}
	if u.IfResetHash != nil && a.ResetHash != *u.IfResetHash {
		return false
	}
	return true
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=64,excludes=@"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	// Identifier is either the email or the username.
	Identifier string `json:"identifier" validate:"required_without_all=Email Username"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password" validate:"required"`
}

// Subject returns the identifier the caller supplied, in priority order.
func (r LoginRequest) Subject() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Email != "":
		return r.Email
	}
	return r.Username
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerificationRequest asks for a fresh verification link without a session.
type VerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}
