package handler

import (
	"net/http"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

const (
	AccessCookie  = middleware.AccessCookie
	RefreshCookie = "refreshToken"
)

// CookieOptions controls the session cookies written on login and refresh.
type CookieOptions struct {
	Secure bool
	Now    func() time.Time
}

func (o CookieOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o CookieOptions) setTokens(w http.ResponseWriter, t domain.TokenPair) {
	now := o.now()
	http.SetCookie(w, o.cookie(AccessCookie, t.AccessToken, maxAge(t.AccessExpiresAt, now)))
	http.SetCookie(w, o.cookie(RefreshCookie, t.RefreshToken, maxAge(t.RefreshExpiresAt, now)))
}

func (o CookieOptions) clear(w http.ResponseWriter) {
	http.SetCookie(w, o.cookie(AccessCookie, "", -1))
	http.SetCookie(w, o.cookie(RefreshCookie, "", -1))
}

func (o CookieOptions) cookie(name, value string, age int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   age,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// maxAge never returns 0, which would leave the cookie without an expiry.
func maxAge(exp, now time.Time) int {
	secs := int(exp.Sub(now).Seconds())
	if secs < 1 {
		return -1
	}
	return secs
}
