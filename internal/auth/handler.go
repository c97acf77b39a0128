package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gym-auth/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service  *Service
	logger   *observability.Logger
	validate *validator.Validate
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})

	return &Handler{service: service, logger: logger, validate: validate}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=200"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type meResponse struct {
	Username string `json:"username"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Warn("login_failed", map[string]any{
				"username":   normalizeUsername(body.Username),
				"request_id": observability.RequestIDFromContext(r.Context()),
			})
			WriteUnauthorized(w, "login and / or password is incorrect")
			return
		}
		var lockedErr ErrAccountLocked
		if errors.As(err, &lockedErr) {
			h.logger.Warn("login_locked", map[string]any{
				"username":     normalizeUsername(body.Username),
				"locked_until": lockedErr.Until.UTC().Format(time.RFC3339),
				"request_id":   observability.RequestIDFromContext(r.Context()),
			})
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(lockedErr.RetryAfter)))
			WriteUnauthorized(w, "account is temporarily locked")
			return
		}

		observability.ReportError(r.Context(), err)
		h.logger.Error("login_error", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			WriteUnauthorized(w, "invalid refresh token")
			return
		}
		observability.ReportError(r.Context(), err)
		h.logger.Error("refresh_error", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout revokes the bearer token of the request. It answers 204 whether or
// not the token was usable.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := BearerToken(r); ok {
		h.service.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "full authentication is required to access this resource")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Username: identity.Username})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " is invalid"
	}
	return "invalid request body"
}

func retryAfterSeconds(remaining time.Duration) int {
	seconds := int(remaining.Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}
