package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gym-auth/internal/auth"
	"gym-auth/internal/maintenance"
	"gym-auth/internal/observability"
)

type memoryStore struct {
	identities map[string]auth.Identity
	pingErr    error
}

func (s *memoryStore) FindIdentityByUsername(_ context.Context, username string) (auth.Identity, error) {
	identity, ok := s.identities[username]
	if !ok {
		return auth.Identity{}, auth.ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memoryStore) UpsertIdentity(_ context.Context, username, passwordHash string) error {
	s.identities[username] = auth.Identity{Username: username, PasswordHash: passwordHash}
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return s.pingErr }

type testApp struct {
	handler  http.Handler
	store    *memoryStore
	registry *auth.RevocationRegistry
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("expected hash to succeed, got %v", err)
	}
	store := &memoryStore{identities: map[string]auth.Identity{
		"carol": {Username: "carol", PasswordHash: string(hash)},
	}}

	logger := observability.NewLoggerWithWriter(io.Discard, "error")
	registry := auth.NewRevocationRegistry()
	authority := auth.NewAuthority(auth.NewCodec("0123456789abcdef0123456789abcdef"), registry)
	service := auth.NewService(store, authority, auth.NewLoginGuard()).WithHashCost(bcrypt.MinCost)

	handler := NewHandler(Components{
		Logger:        logger,
		Authenticator: auth.NewAuthenticator(authority, store, logger),
		AuthHandler:   auth.NewHandler(service, logger),
		LoginLimiter:  auth.NewLoginRateLimiter(100, time.Minute),
		SweepHandler:  maintenance.NewSweepHandler(registry, logger, "cron-secret"),
		Health:        store,
	})

	return &testApp{handler: handler, store: store, registry: registry}
}

func (a *testApp) do(method, path, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutesLoginMeLogoutFlow(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(http.MethodPost, "/auth/login", `{"username":"carol","password":"pass"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(observability.RequestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
	var tokens auth.Tokens
	if err := json.NewDecoder(rec.Body).Decode(&tokens); err != nil {
		t.Fatalf("expected token body, got %v", err)
	}
	bearer := "Bearer " + tokens.AccessToken

	if rec := app.do(http.MethodGet, "/auth/me", "", bearer); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", rec.Code)
	}
	if rec := app.do(http.MethodPost, "/auth/logout", "", bearer); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", rec.Code)
	}

	rec = app.do(http.MethodGet, "/auth/me", "", bearer)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
	var body auth.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.BusinessErrorCode != http.StatusUnauthorized {
		t.Fatalf("expected businessErrorCode 401, got %+v (%v)", body, err)
	}
	if app.registry.Len() != 1 {
		t.Fatalf("expected 1 revocation entry, got %d", app.registry.Len())
	}
}

func TestRoutesGarbageBearerPassesThroughToPublicRoute(t *testing.T) {
	app := newTestApp(t)

	if rec := app.do(http.MethodGet, "/health", "", "Bearer garbage"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}
	if rec := app.do(http.MethodGet, "/auth/me", "", "Bearer garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from protected route, got %d", rec.Code)
	}
}

func TestRoutesHealthDegraded(t *testing.T) {
	app := newTestApp(t)
	app.store.pingErr = errors.New("db down")

	if rec := app.do(http.MethodGet, "/health", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRoutesSweepEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.registry.Add("stale", time.Now().Add(-time.Minute))

	rec := app.do(http.MethodPost, "/internal/maintenance/sweep", "", "Bearer cron-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if app.registry.Len() != 0 {
		t.Fatalf("expected stale entry swept, got %d", app.registry.Len())
	}
}
