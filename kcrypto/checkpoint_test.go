package kcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewCheckpointSigner("key-1")
	require.NoError(t, err)
	cp := Checkpoint{
		Version:    CheckpointVersion,
		Tenant:     1,
		Stream:     100,
		HeadOffset: 41,
		HeadHash:   []byte("0123456789012345678901234567890"),
		Timestamp:  1700000000000,
	}

	signed, err := signer.Sign(cp)
	require.NoError(t, err)

	got, err := VerifyCheckpoint(signer.PublicKey(), signed)
	require.NoError(t, err)
	assert.Equal(t, cp.Tenant, got.Tenant)
	assert.Equal(t, cp.HeadOffset, got.HeadOffset)
}

func TestCheckpointVerifyRejectsTamperedSignature(t *testing.T) {
	signer, err := NewCheckpointSigner("key-1")
	require.NoError(t, err)
	signed, err := signer.Sign(Checkpoint{Version: CheckpointVersion, Tenant: 1, Timestamp: 1})
	require.NoError(t, err)
	signed[len(signed)-1] ^= 0xFF

	_, err = VerifyCheckpoint(signer.PublicKey(), signed)
	assert.Error(t, err, "expected verification failure for tampered signature")
}
