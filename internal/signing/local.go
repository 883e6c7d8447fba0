package signing

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LocalSigner holds an RSA key in-process. It stands in for the external
// signing backend in development and tests; the Signer contract is identical.
type LocalSigner struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewLocalSigner wraps an existing RSA private key.
func NewLocalSigner(key *rsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, errors.New("signing: nil key")
	}
	kid, err := fingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key, keyID: kid}, nil
}

// NewEphemeralSigner generates a fresh 2048-bit key. Dev and test use only.
func NewEphemeralSigner() (*LocalSigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("signing: generate key: %w", err)
	}
	return NewLocalSigner(key)
}

// LoadLocalSigner reads a PKCS#1 or PKCS#8 PEM private key from disk.
func LoadLocalSigner(path string) (*LocalSigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signing: read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing: no PEM block in key file")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewLocalSigner(key)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing: parse key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing: key is not RSA")
	}
	return NewLocalSigner(key)
}

// Sign signs a SHA-256 digest with RSASSA-PKCS1-v1_5, matching RS256 tokens.
func (s *LocalSigner) Sign(_ context.Context, digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("signing: digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest)
}

// PublicKey returns the verification key.
func (s *LocalSigner) PublicKey(_ context.Context) (crypto.PublicKey, error) {
	return &s.key.PublicKey, nil
}

// KeyID returns a stable fingerprint of the public key.
func (s *LocalSigner) KeyID() string { return s.keyID }

func fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("signing: fingerprint: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8]), nil
}
