package auth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAuthority(clock *fakeClock) (*Authority, *RevocationRegistry) {
	registry := NewRevocationRegistry()
	authority := NewAuthority(NewCodec(testSecret), registry).
		WithTTL(time.Hour, 24*time.Hour).
		WithClock(clock.Now)
	return authority, registry
}

func TestAuthorityIssuedAccessTokenIsValid(t *testing.T) {
	authority, _ := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	token, err := authority.IssueAccessToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	if !authority.IsAccessTokenValid(token, alice) {
		t.Fatalf("expected fresh access token to be valid")
	}
	if authority.IsAccessTokenValid(token, Identity{Username: "bob"}) {
		t.Fatalf("expected token to be invalid for a different principal")
	}
}

func TestAuthorityKindsAreNotInterchangeable(t *testing.T) {
	authority, _ := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	access, err := authority.IssueAccessToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	refresh, err := authority.IssueRefreshToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}

	if authority.IsAccessTokenValid(refresh, alice) {
		t.Fatalf("expected refresh token to fail the access check")
	}
	if authority.IsRefreshTokenValid(access, alice) {
		t.Fatalf("expected access token to fail the refresh check")
	}
	if !authority.IsRefreshTokenValid(refresh, alice) {
		t.Fatalf("expected refresh token to pass the refresh check")
	}
	if !authority.IsRefreshToken(refresh) || authority.IsRefreshToken(access) {
		t.Fatalf("expected IsRefreshToken to classify by kind")
	}
}

func TestAuthorityRevokeInvalidatesBeforeExpiry(t *testing.T) {
	authority, registry := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	token, err := authority.IssueAccessToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}

	authority.Revoke(token)
	if authority.IsAccessTokenValid(token, alice) {
		t.Fatalf("expected revoked token to be invalid")
	}

	authority.Revoke(token)
	if authority.IsAccessTokenValid(token, alice) {
		t.Fatalf("expected token to stay invalid after a second revoke")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 revocation entry, got %d", registry.Len())
	}
}

func TestAuthorityExpiredTokenNeedsNoRevocation(t *testing.T) {
	clock := newFakeClock()
	authority, registry := newTestAuthority(clock)
	alice := Identity{Username: "alice"}

	token, err := authority.IssueAccessToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}

	clock.Advance(time.Hour + time.Second)
	if authority.IsAccessTokenValid(token, alice) {
		t.Fatalf("expected expired token to be invalid")
	}
	if registry.Len() != 0 {
		t.Fatalf("expected no revocation entry, got %d", registry.Len())
	}
}

func TestAuthorityRevokeIgnoresGarbage(t *testing.T) {
	authority, registry := newTestAuthority(newFakeClock())

	authority.Revoke("garbage")
	authority.Revoke("")

	if registry.Len() != 0 {
		t.Fatalf("expected garbage revocation to be a no-op, got %d entries", registry.Len())
	}
}

func TestAuthorityIssuesDistinctTokensInSameSecond(t *testing.T) {
	authority, _ := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	first, err := authority.IssueRefreshToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	second, err := authority.IssueRefreshToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens for the same instant")
	}
}

func TestAuthorityConsumeSucceedsOnce(t *testing.T) {
	authority, _ := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	refresh, err := authority.IssueRefreshToken(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if authority.Consume(refresh, alice) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins.Load())
	}
	if authority.IsRefreshTokenValid(refresh, alice) {
		t.Fatalf("expected consumed refresh token to be invalid")
	}
}

func TestAuthorityIssuePair(t *testing.T) {
	authority, _ := newTestAuthority(newFakeClock())
	alice := Identity{Username: "alice"}

	pair, err := authority.IssuePair(alice)
	if err != nil {
		t.Fatalf("expected issue to succeed, got %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("expected token type Bearer, got %q", pair.TokenType)
	}
	if pair.ExpiresIn != 3600 {
		t.Fatalf("expected expiresIn 3600, got %d", pair.ExpiresIn)
	}
	if !authority.IsAccessTokenValid(pair.AccessToken, alice) || !authority.IsRefreshTokenValid(pair.RefreshToken, alice) {
		t.Fatalf("expected both tokens of the pair to be valid")
	}
}

func TestAuthorityWithTTLRejectsInvertedPair(t *testing.T) {
	authority := NewAuthority(NewCodec(testSecret), NewRevocationRegistry()).WithTTL(2*time.Hour, time.Hour)
	if authority.AccessTTL() != defaultAccessTTL {
		t.Fatalf("expected default access TTL, got %v", authority.AccessTTL())
	}
}
