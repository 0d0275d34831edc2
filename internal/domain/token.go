package domain

import "time"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is returned by Login: the issued tokens and the sanitized account.
type Session struct {
	Tokens  TokenPair    `json:"tokens"`
	Account *AccountView `json:"account"`
}
