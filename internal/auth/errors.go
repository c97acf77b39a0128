package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

var (
	ErrMalformedToken        = errors.New("malformed token")
	ErrSignatureInvalid      = errors.New("token signature invalid")
	ErrIdentityNotFound      = errors.New("identity not found")
	ErrTokenRevokedOrExpired = errors.New("token revoked or expired")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)

// ErrAccountLocked carries the lock deadline and how long remains of it, both
// measured on the guard's clock.
type ErrAccountLocked struct {
	Until      time.Time
	RetryAfter time.Duration
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}

// ErrorResponse is the body of every error answered by this package.
type ErrorResponse struct {
	BusinessErrorCode        int    `json:"businessErrorCode"`
	BusinessErrorDescription string `json:"businessErrorDescription"`
	ErrorMessage             string `json:"errorMessage"`
}

const unauthorizedDescription = "Unauthorized"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		BusinessErrorCode:        status,
		BusinessErrorDescription: http.StatusText(status),
		ErrorMessage:             message,
	})
}

// WriteUnauthorized emits the 401 auth-failure body. The message never says
// why the credential was refused.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		BusinessErrorCode:        http.StatusUnauthorized,
		BusinessErrorDescription: unauthorizedDescription,
		ErrorMessage:             message,
	})
}
