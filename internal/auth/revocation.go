package auth

import (
	"sync"
	"time"
)

// RevocationRegistry is an in-memory denylist of raw token strings. An entry's
// presence is the revocation; the stored expiry only tells Sweep when the
// entry can be reclaimed.
type RevocationRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewRevocationRegistry() *RevocationRegistry {
	return &RevocationRegistry{entries: make(map[string]time.Time)}
}

func (r *RevocationRegistry) Add(token string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = expiresAt
}

// TryAdd inserts token unless it is already present and reports whether it
// did.
func (r *RevocationRegistry) TryAdd(token string, expiresAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[token]; ok {
		return false
	}
	r.entries[token] = expiresAt
	return true
}

func (r *RevocationRegistry) Contains(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[token]
	return ok
}

// Sweep drops every entry whose expiry is at or before now and reports how
// many were removed.
func (r *RevocationRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, expiresAt := range r.entries {
		if !now.Before(expiresAt) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

func (r *RevocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
