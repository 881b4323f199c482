package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, expiry time.Duration) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewProviderFromKeys(key, &key.PublicKey, expiry)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	p := newTestProvider(t, time.Hour)
	tok, err := p.Sign("u1", "restaurant-staff", "user")
	require.NoError(t, err)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "restaurant-staff", claims.Category)
	assert.Equal(t, "user", claims.Role)
}

func TestVerify_RejectsExpired(t *testing.T) {
	p := newTestProvider(t, -time.Minute)
	tok, err := p.Sign("u1", "customer", "user")
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_RejectsForeignKey(t *testing.T) {
	signer := newTestProvider(t, time.Hour)
	verifier := newTestProvider(t, time.Hour)
	tok, err := signer.Sign("u1", "customer", "user")
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.Error(t, err)
}
