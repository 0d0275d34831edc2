package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// secretBytes gives 256 bits of entropy per single-use secret.
const secretBytes = 32

// NewSecret generates a random hex secret and returns it with its fingerprint.
// Only the fingerprint may be persisted.
func NewSecret() (plain, hash string, err error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	plain = hex.EncodeToString(b)
	return plain, Fingerprint(plain), nil
}

// Fingerprint returns the SHA-256 hex digest of s.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Equal compares two fingerprints in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
