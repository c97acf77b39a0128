package auth

import (
	"sync"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultLockDuration = 5 * time.Minute
)

// LoginGuard counts failed logins per username and locks a username out for
// a while once the threshold is reached. Expired locks are cleared lazily the
// first time IsLocked observes them.
type LoginGuard struct {
	mu           sync.Mutex
	failures     map[string]int
	lockedUntil  map[string]time.Time
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewLoginGuard() *LoginGuard {
	return &LoginGuard{
		failures:     make(map[string]int),
		lockedUntil:  make(map[string]time.Time),
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockDuration,
		now:          time.Now,
	}
}

func (g *LoginGuard) WithPolicy(maxAttempts int, lockDuration time.Duration) *LoginGuard {
	if maxAttempts > 0 {
		g.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		g.lockDuration = lockDuration
	}
	return g
}

func (g *LoginGuard) WithClock(now func() time.Time) *LoginGuard {
	if now != nil {
		g.now = now
	}
	return g
}

func (g *LoginGuard) RecordFailure(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if until, ok := g.lockedUntil[username]; ok && !g.now().Before(until) {
		g.clear(username)
	}

	g.failures[username]++
	if g.failures[username] < g.maxAttempts {
		return
	}
	if _, locked := g.lockedUntil[username]; !locked {
		g.lockedUntil[username] = g.now().Add(g.lockDuration)
	}
}

func (g *LoginGuard) RecordSuccess(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clear(username)
}

func (g *LoginGuard) IsLocked(username string) bool {
	_, locked := g.LockedUntil(username)
	return locked
}

// LockedUntil reports when an active lock on username ends.
func (g *LoginGuard) LockedUntil(username string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.lockedUntil[username]
	if !ok {
		return time.Time{}, false
	}
	if g.now().Before(until) {
		return until, true
	}
	g.clear(username)
	return time.Time{}, false
}

// Now reads the guard's clock.
func (g *LoginGuard) Now() time.Time {
	return g.now()
}

// Failures returns the current failure count for username.
func (g *LoginGuard) Failures(username string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures[username]
}

func (g *LoginGuard) clear(username string) {
	delete(g.failures, username)
	delete(g.lockedUntil, username)
}
