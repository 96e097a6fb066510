package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
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
	tok, err := p.Sign("123", "mod", "staff")
	require.NoError(t, err)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "123", claims.UserID)
	assert.Equal(t, "mod", claims.Name)
	assert.Equal(t, "staff", claims.Role)
}

func TestVerify_Expired(t *testing.T) {
	p := newTestProvider(t, time.Minute)
	p.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := p.Sign("123", "mod", "staff")
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_WrongKey(t *testing.T) {
	signer := newTestProvider(t, time.Hour)
	verifier := newTestProvider(t, time.Hour)
	tok, err := signer.Sign("123", "mod", "staff")
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.Error(t, err)
}

func TestSign_WithoutPrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := NewProviderFromKeys(nil, &key.PublicKey, time.Hour)

	_, err = p.Sign("1", "n", "staff")
	assert.Error(t, err)
}
