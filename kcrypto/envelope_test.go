package kcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dek, err := GenerateDEK()
	require.NoError(t, err)
	nonce := Nonce(dek, "tenant/1/stream/2", 42)
	aad := []byte("stream-header")
	pt := []byte("hello compliance world")

	ct, err := Encrypt(dek, nonce, aad, pt)
	require.NoError(t, err)
	got, err := Decrypt(dek, nonce, aad, ct)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestEncryptIsDeterministicForReplay(t *testing.T) {
	dek, err := GenerateDEK()
	require.NoError(t, err)
	nonce := Nonce(dek, "tenant/1/stream/2", 7)
	pt := []byte("payload")

	a, err := Encrypt(dek, nonce, nil, pt)
	require.NoError(t, err)
	b, err := Encrypt(dek, nonce, nil, pt)
	require.NoError(t, err)
	assert.Equal(t, a, b, "replaying the same commit must produce identical ciphertext")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	dek, err := GenerateDEK()
	require.NoError(t, err)
	nonce := Nonce(dek, "s", 1)
	ct, err := Encrypt(dek, nonce, nil, []byte("data"))
	require.NoError(t, err)
	ct[0] ^= 0xFF
	_, err = Decrypt(dek, nonce, nil, ct)
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
}

func TestWrapUnwrapDEKRoundTrip(t *testing.T) {
	kek, err := GenerateKEK()
	require.NoError(t, err)
	dek, err := GenerateDEK()
	require.NoError(t, err)

	wrapped, err := WrapDEK(kek, dek)
	require.NoError(t, err)
	got, err := UnwrapDEK(kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, dek, got, "unwrapped dek does not match original")
}

func TestNonceDiffersAcrossOffsets(t *testing.T) {
	dek, err := GenerateDEK()
	require.NoError(t, err)
	a := Nonce(dek, "s", 1)
	b := Nonce(dek, "s", 2)
	assert.NotEqual(t, a, b, "nonces for different offsets must differ")
}

func TestAssertNotZeroPanicsOnAllZeroDEK(t *testing.T) {
	var zero DEK
	var nonce [NonceSize]byte
	assert.Panics(t, func() {
		_, _ = Encrypt(zero, nonce, nil, []byte("x"))
	}, "expected panic for all-zero dek")
}
