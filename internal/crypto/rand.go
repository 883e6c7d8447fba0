// Package crypto generates the high-entropy identifiers embedded in join tokens.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// ShortCodeLen is the length of the human-shareable token alias.
// The short_code column is UNIQUE; issuance retries on collision rather than
// widening the code.
const ShortCodeLen = 10

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewTokenID returns a 64-char hex token id (32 random bytes).
func NewTokenID() (string, error) {
	b, err := RandBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewNonce returns a 32-char hex nonce (16 random bytes) for the signed payload.
func NewNonce() (string, error) {
	b, err := RandBytes(16)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ShortCode derives the human-shareable alias from a token id.
func ShortCode(tokenID string) string {
	if len(tokenID) < ShortCodeLen {
		return tokenID
	}
	return tokenID[:ShortCodeLen]
}
