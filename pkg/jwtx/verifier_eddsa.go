package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verifier checks a compact JWS and returns its claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// EdDSAVerifier accepts EdDSA tokens whose kid is in its KeySet.
type EdDSAVerifier struct {
	keys   *KeySet
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewVerifierEdDSA returns a verifier for tokens issued by issuer. An empty
// issuer is not checked.
func NewVerifierEdDSA(keys *KeySet, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{
		keys:   keys,
		issuer: issuer,
		now:    time.Now,
		// time-based claims are checked against v.now in Verify
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// WithClock replaces the time source used for exp and nbf.
func (v *EdDSAVerifier) WithClock(now func() time.Time) *EdDSAVerifier {
	v.now = now
	return v
}

func (v *EdDSAVerifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("jwtx: token has no kid")
	}
	pub, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("kid %q: %w", kid, err)
	}
	return pub, nil
}

func (v *EdDSAVerifier) Verify(raw string) (*Claims, error) {
	var claims Claims
	tok, err := v.parser.ParseWithClaims(raw, &claims, v.keyFor)
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	case err != nil:
		return nil, fmt.Errorf("jwtx: verify: %w", err)
	case !tok.Valid:
		return nil, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(v.now()); err != nil {
		return nil, err
	}
	return &claims, nil
}
