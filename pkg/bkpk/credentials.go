package bkpk

import (
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/bkpk/pkg/jwtx"
)

// credential is the access token held for authenticated API calls. It is
// only kept in memory.
type credential struct {
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time // zero means no known expiry
}

// set replaces the credential. Without an explicit expiry the token's own
// exp claim is used when it is a JWT.
func (c *credential) set(token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		if exp, ok := jwtx.ExpiresAt(token); ok {
			expiresAt = exp
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// accessToken returns the token if it is set and not expired at call time.
func (c *credential) accessToken() (string, time.Time, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()

	if token == "" {
		return "", time.Time{}, ErrNoAccessToken
	}
	if !expiresAt.IsZero() && !c.now().Before(expiresAt) {
		return "", time.Time{}, ErrExpiredAccessToken
	}
	return token, expiresAt, nil
}

// Token implements oauth2.TokenSource. It never refreshes: an expired
// credential yields ErrExpiredAccessToken.
func (c *credential) Token() (*oauth2.Token, error) {
	token, expiresAt, err := c.accessToken()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiresAt,
	}, nil
}
