package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-auth-nosql/internal/application/identity"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	sessions session.Service
	identity identity.Service
	cookies  CookieOptions
	logger   *slog.Logger
}

func NewAuthHandler(sessions session.Service, proofs identity.Service, cookies CookieOptions, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{sessions: sessions, identity: proofs, cookies: cookies, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}
	view, err := h.sessions.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusCreated, view, "User registered successfully and verification email has been sent on your email")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !h.bind(w, r, &req) {
		return
	}
	sess, err := h.sessions.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cookies.setTokens(w, sess.Tokens)
	respond(w, http.StatusOK, TokensData{
		User:         sess.Account,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}, "User logged in successfully")
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "token")
	if secret == "" {
		writeError(w, http.StatusBadRequest, "email verification token is missing")
		return
	}
	view, err := h.identity.VerifyEmail(r.Context(), secret)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"isEmailVerified": view.EmailVerified}, "Email is verified")
}

// Refresh reads the refresh token from its cookie, falling back to the
// refresh_token field of a JSON body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var presented string
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		presented = c.Value
	} else {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = decode(r, &body)
		presented = body.RefreshToken
	}
	sess, err := h.sessions.Refresh(r.Context(), presented)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cookies.setTokens(w, sess.Tokens)
	respond(w, http.StatusOK, TokensData{
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}, "Access token refreshed")
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.identity.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, struct{}{}, "Password reset mail has been sent on your mail id")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.identity.CompletePasswordReset(r.Context(), chi.URLParam(r, "token"), req.NewPassword); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, struct{}{}, "Password reset successfully")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Message)
		return
	}
	if err := h.sessions.Logout(r.Context(), claims.AccountID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cookies.clear(w)
	respond(w, http.StatusOK, struct{}{}, "User logged out")
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Message)
		return
	}
	view, err := h.sessions.Current(r.Context(), claims.AccountID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, view, "Current user fetched successfully")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Message)
		return
	}
	var req domain.ChangePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.sessions.ChangePassword(r.Context(), claims.AccountID, req); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Message)
		return
	}
	if err := h.identity.ResendVerification(r.Context(), claims.AccountID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, struct{}{}, "Mail has been sent to your email ID")
}

// RequestVerification resends the verification link to an email address. It
// needs no session since an unverified account cannot log in.
func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.VerificationRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.identity.RequestVerification(r.Context(), req.Email); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, struct{}{}, "Mail has been sent to your email ID")
}

// bind decodes and validates the body, writing the error response itself.
func (h *AuthHandler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decode(r, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
