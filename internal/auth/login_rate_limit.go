package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"gym-auth/internal/observability"
)

const maxTrackedIPs = 5000

// LoginRateLimiter throttles login calls per client IP with a sliding window.
// It is independent of LoginGuard, which tracks usernames.
type LoginRateLimiter struct {
	mu      sync.Mutex
	maxHits int
	window  time.Duration
	hitByIP map[string][]time.Time
	now     func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits: maxHits,
		window:  window,
		hitByIP: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (l *LoginRateLimiter) WithClock(now func() time.Time) *LoginRateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.Allow(observability.ClientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow records a hit for ip and reports whether it fits in the window.
func (l *LoginRateLimiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitByIP[ip]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(threshold) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.maxHits {
		l.hitByIP[ip] = kept
		retryAfter := kept[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.hitByIP[ip] = append(kept, now)

	if len(l.hitByIP) > maxTrackedIPs {
		for key, value := range l.hitByIP {
			if len(value) == 0 || !value[len(value)-1].After(threshold) {
				delete(l.hitByIP, key)
			}
		}
	}

	return true, 0
}
