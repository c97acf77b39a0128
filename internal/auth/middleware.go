package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gym-auth/internal/observability"
)

const invalidTokenMessage = "invalid or expired token"

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// CredentialStore resolves a principal by username. Implementations return
// ErrIdentityNotFound when no such principal exists.
type CredentialStore interface {
	FindIdentityByUsername(ctx context.Context, username string) (Identity, error)
}

// Authenticator is the per-request gate. Requests without a usable bearer
// token pass through unauthenticated; requests carrying a decodable token
// are either bound to an identity or rejected with 401.
type Authenticator struct {
	authority *Authority
	store     CredentialStore
	logger    *observability.Logger
}

func NewAuthenticator(authority *Authority, store CredentialStore, logger *observability.Logger) *Authenticator {
	return &Authenticator{authority: authority, store: store, logger: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, bound := IdentityFromContext(ctx); bound {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := a.authority.Subject(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.store.FindIdentityByUsername(ctx, subject)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				a.logger.Warn("auth_identity_missing", map[string]any{
					"username":   subject,
					"request_id": observability.RequestIDFromContext(ctx),
				})
				WriteUnauthorized(w, invalidTokenMessage)
				return
			}
			observability.ReportError(ctx, err)
			a.logger.Error("auth_identity_lookup_failed", map[string]any{
				"error":      err.Error(),
				"request_id": observability.RequestIDFromContext(ctx),
			})
			writeError(w, http.StatusInternalServerError, "failed to authenticate request")
			return
		}

		if !a.authority.IsAccessTokenValid(raw, identity) {
			a.logger.Warn("auth_token_rejected", map[string]any{
				"username":   subject,
				"request_id": observability.RequestIDFromContext(ctx),
			})
			WriteUnauthorized(w, invalidTokenMessage)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

// RequireIdentity rejects requests the Authenticator let through without an
// identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			WriteUnauthorized(w, "full authentication is required to access this resource")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
