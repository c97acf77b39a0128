package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimID        = "jti"
	claimSubject   = "sub"
	claimKind      = "typ"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
)

var reservedClaims = map[string]struct{}{
	claimID:        {},
	claimSubject:   {},
	claimKind:      {},
	claimIssuedAt:  {},
	claimExpiresAt: {},
}

// Codec turns claims into signed compact tokens and back. It only checks
// structure and signature; expiry and kind are judged by the Authority.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	parser *jwt.Parser
}

func NewCodec(secret string) *Codec {
	method := jwt.SigningMethodHS256
	return &Codec{
		secret: []byte(secret),
		method: method,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

func (c *Codec) Encode(claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("encode token: empty subject")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return "", fmt.Errorf("encode token: expiry must be after issued-at")
	}

	mapped := jwt.MapClaims{}
	for k, v := range claims.Extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		mapped[k] = v
	}
	mapped[claimSubject] = claims.Subject
	mapped[claimKind] = string(claims.Kind)
	mapped[claimIssuedAt] = claims.IssuedAt.Unix()
	mapped[claimExpiresAt] = claims.ExpiresAt.Unix()
	if claims.ID != "" {
		mapped[claimID] = claims.ID
	}

	signed, err := jwt.NewWithClaims(c.method, mapped).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Decode returns ErrMalformedToken or ErrSignatureInvalid (wrapped) on failure.
func (c *Codec) Decode(raw string) (Claims, error) {
	mapped := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(raw, mapped, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return Claims{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	subject, err := mapped.GetSubject()
	if err != nil || subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	expiresAt, err := mapped.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrMalformedToken)
	}
	issuedAt, err := mapped.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing issued-at", ErrMalformedToken)
	}

	kind, _ := mapped[claimKind].(string)
	id, _ := mapped[claimID].(string)

	out := Claims{
		ID:        id,
		Subject:   subject,
		Kind:      Kind(kind),
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}
	for k, v := range mapped {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}

	return out, nil
}
