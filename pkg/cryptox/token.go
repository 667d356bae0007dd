package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenSize128 provides 128 bits of entropy (22 chars base64url).
const TokenSize128 = 16

// Alphanumeric is the alphabet used by GenerateAlphanumeric.
const Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// largest multiple of len(Alphanumeric) that fits in a byte
const alphanumericLimit = 256 - 256%len(Alphanumeric)

// GenerateAlphanumeric returns a random string of exactly length characters
// drawn uniformly from Alphanumeric. Bytes at or above alphanumericLimit are
// rejected so every symbol is equally likely.
//
// Used for CSRF state values: 10 characters carry ~59 bits of entropy.
func GenerateAlphanumeric(length int) string {
	if length <= 0 {
		return ""
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		// crypto/rand.Read never returns an error since go1.24
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= alphanumericLimit {
				continue
			}
			out = append(out, Alphanumeric[int(b)%len(Alphanumeric)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out)
}

// GenerateToken returns size random bytes as unpadded base64url, e.g. the
// authorization codes handed out by the development provider.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
