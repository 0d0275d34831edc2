package domain

import "time"

// SecretKind names one of the two single-use secret slots on an account.
type SecretKind string

const (
	SecretVerification SecretKind = "verification"
	SecretReset        SecretKind = "reset"
)

// PendingSecret is a stored fingerprint plus its expiry.
// The zero value clears the slot when used in an AccountUpdate.
type PendingSecret struct {
	Hash      string
	ExpiresAt time.Time
}

func (p PendingSecret) IsZero() bool { return p.Hash == "" }

// Valid reports whether hash matches and now is not past the expiry.
func (p PendingSecret) Valid(hash string, now time.Time) bool {
	return !p.IsZero() && p.Hash == hash && !now.After(p.ExpiresAt)
}

func (p PendingSecret) fields() (string, *time.Time) {
	if p.IsZero() {
		return "", nil
	}
	t := p.ExpiresAt
	return p.Hash, &t
}
