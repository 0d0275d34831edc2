package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims holds the JWT payload fields. Refresh tokens only carry AccountID.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

type family struct {
	secret []byte
	ttl    time.Duration
	kind   string
}

// Provider signs and verifies HS256 JWTs. Access and refresh tokens use
// separate secrets so one family can never be replayed as the other.
type Provider struct {
	access  family
	refresh family
	issuer  string
	now     func() time.Time
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &Provider{
		access:  family{secret: []byte(cfg.AccessTokenSecret), ttl: cfg.AccessTokenExpiry, kind: typeAccess},
		refresh: family{secret: []byte(cfg.RefreshTokenSecret), ttl: cfg.RefreshTokenExpiry, kind: typeRefresh},
		issuer:  cfg.TokenIssuer,
		now:     time.Now,
	}, nil
}

// WithClock replaces the time source; used by tests.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	cp := *p
	cp.now = now
	return &cp
}

func (p *Provider) IssueAccess(a *domain.Account) (string, time.Time, error) {
	return p.sign(p.access, Claims{AccountID: a.AccountID, Email: a.Email, Username: a.Username})
}

func (p *Provider) IssueRefresh(a *domain.Account) (string, time.Time, error) {
	return p.sign(p.refresh, Claims{AccountID: a.AccountID})
}

func (p *Provider) VerifyAccess(tokenStr string) (*Claims, error) {
	return p.verify(p.access, tokenStr)
}

func (p *Provider) VerifyRefresh(tokenStr string) (*Claims, error) {
	return p.verify(p.refresh, tokenStr)
}

func (p *Provider) sign(f family, claims Claims) (string, time.Time, error) {
	now := p.now()
	exp := now.Add(f.ttl)
	claims.Type = f.kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        id.New(),
		Issuer:    p.issuer,
		Subject:   claims.AccountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", f.kind, err)
	}
	return signed, exp, nil
}

func (p *Provider) verify(f family, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, domain.ErrMalformedToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return f.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != f.kind || claims.AccountID == "" {
		return nil, domain.ErrMalformedToken
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
}
