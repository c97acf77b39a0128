package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// IdentityRepository is the credential store plus the one write the service
// performs itself.
type IdentityRepository interface {
	CredentialStore
	UpsertIdentity(ctx context.Context, username, passwordHash string) error
}

type Service struct {
	store     IdentityRepository
	authority *Authority
	guard     *LoginGuard
	hashCost  int
}

func NewService(store IdentityRepository, authority *Authority, guard *LoginGuard) *Service {
	return &Service{
		store:     store,
		authority: authority,
		guard:     guard,
		hashCost:  bcrypt.DefaultCost,
	}
}

func (s *Service) WithHashCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.hashCost = cost
	}
	return s
}

func (s *Service) Login(ctx context.Context, username, password string) (Tokens, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return Tokens{}, ErrInvalidCredentials
	}

	if until, locked := s.guard.LockedUntil(username); locked {
		return Tokens{}, s.lockedError(until)
	}

	identity, err := s.store.FindIdentityByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Tokens{}, s.registerFailure(username)
		}
		return Tokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return Tokens{}, s.registerFailure(username)
	}

	s.guard.RecordSuccess(username)

	return s.authority.IssuePair(identity)
}

func (s *Service) registerFailure(username string) error {
	s.guard.RecordFailure(username)
	if until, locked := s.guard.LockedUntil(username); locked {
		return s.lockedError(until)
	}
	return ErrInvalidCredentials
}

func (s *Service) lockedError(until time.Time) ErrAccountLocked {
	return ErrAccountLocked{Until: until, RetryAfter: until.Sub(s.guard.Now())}
}

// Refresh trades a valid refresh token for a new pair. The presented refresh
// token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || !s.authority.IsRefreshToken(refreshToken) {
		return Tokens{}, ErrInvalidRefreshToken
	}

	subject, err := s.authority.Subject(refreshToken)
	if err != nil {
		return Tokens{}, ErrInvalidRefreshToken
	}

	identity, err := s.store.FindIdentityByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Tokens{}, ErrInvalidRefreshToken
		}
		return Tokens{}, err
	}

	if !s.authority.Consume(refreshToken, identity) {
		return Tokens{}, ErrInvalidRefreshToken
	}

	return s.authority.IssuePair(identity)
}

// Logout revokes token. Invalid tokens are accepted silently.
func (s *Service) Logout(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.authority.Revoke(token)
}

func (s *Service) BootstrapFromEnv(ctx context.Context, adminUsername, adminPassword string) error {
	adminUsername = normalizeUsername(adminUsername)
	adminPassword = strings.TrimSpace(adminPassword)

	if adminUsername == "" && adminPassword == "" {
		return nil
	}
	if adminUsername == "" || adminPassword == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpsertIdentity(ctx, adminUsername, string(hash))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
