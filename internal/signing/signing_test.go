package signing

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalSigner_SignVerify(t *testing.T) {
	s, err := NewEphemeralSigner()
	require.NoError(t, err)

	msg := []byte("header.payload")
	digest := sha256.Sum256(msg)

	sig, err := s.Sign(context.Background(), digest[:])
	require.NoError(t, err)

	pub, err := s.PublicKey(context.Background())
	require.NoError(t, err)

	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)
	require.NoError(t, rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig))
}

func TestLocalSigner_RejectsBadDigestLength(t *testing.T) {
	s, err := NewEphemeralSigner()
	require.NoError(t, err)

	_, err = s.Sign(context.Background(), []byte("too short"))
	require.Error(t, err)
}

func TestLocalSigner_KeyIDStable(t *testing.T) {
	s, err := NewEphemeralSigner()
	require.NoError(t, err)
	require.NotEmpty(t, s.KeyID())
	require.Equal(t, s.KeyID(), s.KeyID())

	other, err := NewEphemeralSigner()
	require.NoError(t, err)
	require.NotEqual(t, s.KeyID(), other.KeyID())
}

// countingSigner wraps a signer to observe public-key fetches.
type countingSigner struct {
	Signer
	fetches int
	fail    bool
}

func (c *countingSigner) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	c.fetches++
	if c.fail {
		return nil, errors.New("backend down")
	}
	return c.Signer.PublicKey(ctx)
}

func TestKeyCache_FetchOnceThenCache(t *testing.T) {
	inner, err := NewEphemeralSigner()
	require.NoError(t, err)
	cs := &countingSigner{Signer: inner}
	cache := NewKeyCache(cs)

	ctx := context.Background()
	k1, err := cache.Get(ctx)
	require.NoError(t, err)
	k2, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Equal(t, 1, cs.fetches)
}

func TestKeyCache_InvalidateForcesRefetch(t *testing.T) {
	inner, err := NewEphemeralSigner()
	require.NoError(t, err)
	cs := &countingSigner{Signer: inner}
	cache := NewKeyCache(cs)

	ctx := context.Background()
	_, err = cache.Get(ctx)
	require.NoError(t, err)

	cache.Invalidate()
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, cs.fetches)
}

func TestKeyCache_FetchErrorNotCached(t *testing.T) {
	inner, err := NewEphemeralSigner()
	require.NoError(t, err)
	cs := &countingSigner{Signer: inner, fail: true}
	cache := NewKeyCache(cs)

	ctx := context.Background()
	_, err = cache.Get(ctx)
	require.Error(t, err)

	cs.fail = false
	_, err = cache.Get(ctx)
	require.NoError(t, err)
}
