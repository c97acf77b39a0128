package auth

import (
	"context"
	"errors"
	"io"
	"sync"

	"gym-auth/internal/observability"
)

type fakeStore struct {
	mu         sync.Mutex
	identities map[string]Identity
	err        error
	lookups    int
}

func newFakeStore(identities ...Identity) *fakeStore {
	store := &fakeStore{identities: make(map[string]Identity)}
	for _, identity := range identities {
		store.identities[identity.Username] = identity
	}
	return store
}

func (s *fakeStore) FindIdentityByUsername(_ context.Context, username string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return Identity{}, s.err
	}
	identity, ok := s.identities[username]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (s *fakeStore) UpsertIdentity(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.identities[username] = Identity{Username: username, PasswordHash: passwordHash}
	return nil
}

func (s *fakeStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

var errStoreDown = errors.New("connection refused")

func discardLogger() *observability.Logger {
	return observability.NewLoggerWithWriter(io.Discard, "error")
}
