package domain

// Error is a domain-level failure with a stable machine code.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrBadRequest         = &Error{Code: "BAD_REQUEST", Message: "bad request"}
	ErrNotFound           = &Error{Code: "NOT_FOUND", Message: "account does not exist"}
	ErrConflict           = &Error{Code: "CONFLICT", Message: "email or username already exists"}
	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrEmailNotVerified   = &Error{Code: "EMAIL_NOT_VERIFIED", Message: "email is not verified"}
	ErrAlreadyVerified    = &Error{Code: "ALREADY_VERIFIED", Message: "email is already verified"}
	ErrInvalidOrExpired   = &Error{Code: "INVALID_OR_EXPIRED", Message: "token is invalid or expired"}
	ErrUnauthorized       = &Error{Code: "UNAUTHORIZED", Message: "unauthorized request"}
	ErrTokenReused        = &Error{Code: "TOKEN_REUSED", Message: "refresh token is expired or used"}
	ErrMalformedToken     = &Error{Code: "MALFORMED_TOKEN", Message: "malformed token"}
	ErrBadSignature       = &Error{Code: "BAD_SIGNATURE", Message: "invalid token signature"}
	ErrTokenExpired       = &Error{Code: "TOKEN_EXPIRED", Message: "token expired"}
	ErrPreconditionFailed = &Error{Code: "PRECONDITION_FAILED", Message: "stored value changed"}
	ErrInternal           = &Error{Code: "INTERNAL", Message: "something went wrong"}
)
