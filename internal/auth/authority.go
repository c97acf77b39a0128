package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 24 * time.Hour
)

var errTokenMismatch = errors.New("token does not match principal or kind")

// Authority is the only place tokens are minted or judged.
type Authority struct {
	codec      *Codec
	revoked    *RevocationRegistry
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthority(codec *Codec, revoked *RevocationRegistry) *Authority {
	return &Authority{
		codec:      codec,
		revoked:    revoked,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
}

// WithTTL overrides the token lifetimes. Refresh tokens must outlive access
// tokens; a pair violating that is ignored.
func (a *Authority) WithTTL(accessTTL, refreshTTL time.Duration) *Authority {
	if accessTTL > 0 && refreshTTL > accessTTL {
		a.accessTTL = accessTTL
		a.refreshTTL = refreshTTL
	}
	return a
}

func (a *Authority) WithClock(now func() time.Time) *Authority {
	if now != nil {
		a.now = now
	}
	return a
}

func (a *Authority) AccessTTL() time.Duration { return a.accessTTL }

func (a *Authority) IssueAccessToken(identity Identity) (string, error) {
	return a.issue(identity, KindAccess, a.accessTTL)
}

func (a *Authority) IssueRefreshToken(identity Identity) (string, error) {
	return a.issue(identity, KindRefresh, a.refreshTTL)
}

// IssuePair mints a fresh access and refresh token for identity.
func (a *Authority) IssuePair(identity Identity) (Tokens, error) {
	access, err := a.IssueAccessToken(identity)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := a.IssueRefreshToken(identity)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(a.accessTTL.Seconds()),
	}, nil
}

func (a *Authority) issue(identity Identity, kind Kind, ttl time.Duration) (string, error) {
	now := a.now().UTC()
	token, err := a.codec.Encode(Claims{
		ID:        uuid.NewString(),
		Subject:   identity.Username,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", kind, err)
	}
	return token, nil
}

func (a *Authority) IsAccessTokenValid(token string, identity Identity) bool {
	return a.validate(token, identity, KindAccess) == nil
}

func (a *Authority) IsRefreshTokenValid(token string, identity Identity) bool {
	return a.validate(token, identity, KindRefresh) == nil
}

// IsRefreshToken classifies token without judging its validity. Undecodable
// input is simply not a refresh token.
func (a *Authority) IsRefreshToken(token string) bool {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return false
	}
	return claims.Kind == KindRefresh
}

// Subject decodes token and returns the principal it names.
func (a *Authority) Subject(token string) (string, error) {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Revoke denylists token until its natural expiry. Tokens that cannot be
// decoded are already unusable and are ignored.
func (a *Authority) Revoke(token string) {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return
	}
	a.revoked.Add(token, claims.ExpiresAt)
}

// Consume revokes a refresh token only if it is currently valid for identity
// and nobody revoked it first. Exactly one concurrent caller wins.
func (a *Authority) Consume(token string, identity Identity) bool {
	if err := a.validate(token, identity, KindRefresh); err != nil {
		return false
	}
	claims, err := a.codec.Decode(token)
	if err != nil {
		return false
	}
	return a.revoked.TryAdd(token, claims.ExpiresAt)
}

func (a *Authority) validate(token string, identity Identity, want Kind) error {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return err
	}
	if claims.Subject != identity.Username || claims.Kind != want {
		return errTokenMismatch
	}
	if !a.now().Before(claims.ExpiresAt) {
		return ErrTokenRevokedOrExpired
	}
	if a.revoked.Contains(token) {
		return ErrTokenRevokedOrExpired
	}
	return nil
}
