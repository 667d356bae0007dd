package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of access tokens minted by the
// development provider.
const DefaultAccessTokenTTL = time.Hour

// Claims is the payload of a Bkpk access token. The audience is always the
// client id of the authorizing application.
type Claims struct {
	jwt.RegisteredClaims

	ClientID string   `json:"client_id,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// NewAccessClaims returns claims valid from now until now+ttl with a random
// jti.
func NewAccessClaims(subject, clientID string, scopes []string, ttl time.Duration, issuer string, now time.Time) Claims {
	var jti [20]byte
	_, _ = rand.Read(jti[:])

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        base64.RawURLEncoding.EncodeToString(jti[:]),
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ClientID: clientID,
		Scopes:   scopes,
	}
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateIssuer returns ErrIssuer unless iss equals want. An empty want
// accepts any issuer.
func (c *Claims) ValidateIssuer(want string) error {
	if want != "" && c.Issuer != want {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry checks exp and nbf against now. Missing claims pass.
func (c *Claims) ValidateExpiry(now time.Time) error {
	switch {
	case c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time):
		return ErrExpired
	case c.NotBefore != nil && now.Before(c.NotBefore.Time):
		return ErrNotYetValid
	}
	return nil
}
