package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Work factors accepted by configuration.
const (
	MinCost = 10
	MaxCost = bcrypt.MaxCost
)

var errEmpty = errors.New("password must not be empty")

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errEmpty
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plain matches digest. A malformed digest never matches.
func (h *Hasher) Verify(plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
