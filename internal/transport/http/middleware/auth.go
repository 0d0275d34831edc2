package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// AccessCookie is the cookie consulted when no Authorization header is sent.
const AccessCookie = "accessToken"

type accessVerifier interface {
	VerifyAccess(tokenStr string) (*jwtinfra.Claims, error)
}

// Auth returns middleware that validates the access token and injects claims into context.
// The token comes from a Bearer header or, failing that, the access cookie.
func Auth(verifier accessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := accessToken(r)
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Message)
				return
			}
			claims, err := verifier.VerifyAccess(tokenStr)
			if err != nil {
				msg := domain.ErrUnauthorized.Message
				var de *domain.Error
				if errors.As(err, &de) {
					msg = de.Message
				}
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

// WithClaims returns ctx carrying claims, as Auth would.
func WithClaims(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
