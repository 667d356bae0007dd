package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the "exp" claim of a JWT without verifying its signature.
// It reports false for opaque tokens and for tokens without an exp.
//
// Clients use this to learn when a token they hold runs out; it must never
// be used to trust the token.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
