// Package memory is an in-process account store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// AccountRepo keeps accounts in a map guarded by a mutex. Reads return copies
// so callers never alias stored records.
type AccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	now      func() time.Time
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{accounts: make(map[string]*domain.Account), now: time.Now}
}

func (r *AccountRepo) FindByID(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return clone(a), nil
}

func (r *AccountRepo) FindByEmailOrUsername(_ context.Context, email, username string) (*domain.Account, error) {
	email, username = domain.NormalizeIdentity(email), domain.NormalizeIdentity(username)
	r.mu.RLock()
	defer r.mu.RUnlock()
	// An email match wins over a username match.
	var byUsername *domain.Account
	for _, a := range r.accounts {
		if email != "" && a.Email == email {
			return clone(a), nil
		}
		if username != "" && a.Username == username && byUsername == nil {
			byUsername = a
		}
	}
	if byUsername != nil {
		return clone(byUsername), nil
	}
	return nil, fmt.Errorf("account lookup: %w", domain.ErrNotFound)
}

func (r *AccountRepo) FindBySecretHash(_ context.Context, kind domain.SecretKind, hash string) (*domain.Account, error) {
	if hash == "" {
		return nil, fmt.Errorf("empty %s hash: %w", kind, domain.ErrNotFound)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Pending(kind).Hash == hash {
			return clone(a), nil
		}
	}
	return nil, fmt.Errorf("%s hash: %w", kind, domain.ErrNotFound)
}

func (r *AccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == a.Email || existing.Username == a.Username {
			return fmt.Errorf("create account: %w", domain.ErrConflict)
		}
	}
	if _, ok := r.accounts[a.AccountID]; ok {
		return fmt.Errorf("create account: %w", domain.ErrConflict)
	}
	r.accounts[a.AccountID] = clone(a)
	return nil
}

func (r *AccountRepo) Update(_ context.Context, accountID string, u domain.AccountUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	if !u.Holds(a) {
		return fmt.Errorf("update account %s: %w", accountID, domain.ErrPreconditionFailed)
	}
	a.Apply(u, r.now().UTC())
	return nil
}

func clone(a *domain.Account) *domain.Account {
	cp := *a
	if a.VerificationExpiresAt != nil {
		t := *a.VerificationExpiresAt
		cp.VerificationExpiresAt = &t
	}
	if a.ResetExpiresAt != nil {
		t := *a.ResetExpiresAt
		cp.ResetExpiresAt = &t
	}
	return &cp
}
