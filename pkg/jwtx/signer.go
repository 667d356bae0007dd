package jwtx

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSASigner signs access tokens with an Ed25519 key and stamps its kid
// into every header.
type EdDSASigner struct {
	kid  string
	priv ed25519.PrivateKey
}

// NewSignerEdDSA loads a PKCS8 "PRIVATE KEY" PEM block as produced by
// cryptox.GenerateEd25519Key.
func NewSignerEdDSA(kid string, pemKey []byte) (*EdDSASigner, error) {
	block, _ := pem.Decode(pemKey)
	switch {
	case block == nil:
		return nil, errors.New("jwtx: invalid PEM for Ed25519 key")
	case block.Type != "PRIVATE KEY":
		return nil, fmt.Errorf("jwtx: want PKCS8 PRIVATE KEY block, got %q", block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("jwtx: key is %T, not Ed25519", parsed)
	}

	return &EdDSASigner{kid: kid, priv: priv}, nil
}

func (s *EdDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }
func (s *EdDSASigner) KID() string { return s.kid }

// PublicKey returns the key verifiers need, see KeySet.AddSigner.
func (s *EdDSASigner) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Sign encodes claims as a compact JWS.
func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.priv)
}

// Validate reports whether the signer holds a usable key and kid.
func (s *EdDSASigner) Validate() error {
	if s.kid == "" {
		return errors.New("jwtx: empty kid")
	}
	if len(s.priv) != ed25519.PrivateKeySize {
		return errors.New("jwtx: invalid Ed25519 private key size")
	}
	return nil
}
