package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/logging"
)

// Envelope wraps every response body.
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// TokensData is returned by login and refresh.
type TokensData struct {
	User         *domain.AccountView `json:"user,omitempty"`
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken"`
}

var statusByCode = map[string]int{
	domain.ErrBadRequest.Code:         http.StatusBadRequest,
	domain.ErrInvalidOrExpired.Code:   http.StatusBadRequest,
	domain.ErrNotFound.Code:           http.StatusNotFound,
	domain.ErrConflict.Code:           http.StatusConflict,
	domain.ErrAlreadyVerified.Code:    http.StatusConflict,
	domain.ErrPreconditionFailed.Code: http.StatusConflict,
	domain.ErrInvalidCredentials.Code: http.StatusUnauthorized,
	domain.ErrUnauthorized.Code:       http.StatusUnauthorized,
	domain.ErrTokenReused.Code:        http.StatusUnauthorized,
	domain.ErrMalformedToken.Code:     http.StatusUnauthorized,
	domain.ErrBadSignature.Code:       http.StatusUnauthorized,
	domain.ErrTokenExpired.Code:       http.StatusUnauthorized,
	domain.ErrEmailNotVerified.Code:   http.StatusForbidden,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, data any, msg string) {
	writeJSON(w, status, Envelope{StatusCode: status, Data: data, Message: msg, Success: status < http.StatusBadRequest})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, nil, msg)
}

// writeDomainError maps err to its public status and message. Anything that
// is not a known domain error, or is an internal one, is logged and hidden.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		if status, ok := statusByCode[de.Code]; ok {
			writeError(w, status, de.Message)
			return
		}
	}
	logging.LogError(logger, "request failed", err)
	writeError(w, http.StatusInternalServerError, domain.ErrInternal.Message)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
