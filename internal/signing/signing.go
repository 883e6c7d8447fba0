// Package signing defines the signing backend contract used for join tokens.
//
// The private key never enters this process: issuance sends a SHA-256 digest of
// the JWS signing string to the backend and receives a raw signature back.
// Verification uses the backend's public key through KeyCache.
package signing

import (
	"context"
	"crypto"
	"sync"
)

// Signer is the custody service holding the token signing key.
// Production deployments back this with a KMS/HSM client; LocalSigner is the
// in-process implementation for development and tests.
type Signer interface {
	// Sign signs a SHA-256 digest and returns the raw signature.
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	// PublicKey returns the verification key for the current signing key.
	PublicKey(ctx context.Context) (crypto.PublicKey, error)
	// KeyID names the signing key for the token header.
	KeyID() string
}

// KeyCache lazily fetches and caches the signer's public key for the process
// lifetime. Invalidate forces a re-fetch, used after a verification failure
// that may indicate key rotation.
type KeyCache struct {
	signer Signer

	mu  sync.Mutex
	key crypto.PublicKey
}

// NewKeyCache constructs an empty cache over the given signer.
func NewKeyCache(s Signer) *KeyCache {
	return &KeyCache{signer: s}
}

// Get returns the cached public key, fetching it on first use.
func (c *KeyCache) Get(ctx context.Context) (crypto.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		return c.key, nil
	}
	key, err := c.signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	c.key = key
	return key, nil
}

// Invalidate drops the cached key so the next Get re-fetches it.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
}
