package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet maps key ids to Ed25519 public keys. Safe for concurrent use.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func NewKeySet() *KeySet {
	return &KeySet{keys: map[string]ed25519.PublicKey{}}
}

// AddSigner trusts tokens signed by s.
func (k *KeySet) AddSigner(s *EdDSASigner) error {
	return k.Add(s.KID(), s.PublicKey())
}

// Add trusts pub for tokens whose header names kid. A later Add for the same
// kid replaces the key.
func (k *KeySet) Add(kid string, pub ed25519.PublicKey) error {
	switch {
	case kid == "":
		return errors.New("jwtx: empty kid")
	case len(pub) != ed25519.PublicKeySize:
		return fmt.Errorf("jwtx: Ed25519 public key is %d bytes", len(pub))
	}

	k.mu.Lock()
	k.keys[kid] = pub
	k.mu.Unlock()
	return nil
}

// Get returns the key for kid or ErrNoKey.
func (k *KeySet) Get(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	pub, ok := k.keys[kid]
	if !ok {
		return nil, ErrNoKey
	}
	return pub, nil
}
