package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	stream, err := ids.NewStreamId(tenant, 1)
	require.NoError(t, err)
	entry := LogEntry{
		OpNumber: 1, View: 0, Tenant: tenant, Stream: stream, Offset: 0,
		Timestamp: 123, EventType: "append", Payload: []byte("hello"),
		PrevHash: GenesisPrevHash(),
	}

	frame, err := EncodeFrame(entry)
	require.NoError(t, err)

	df, consumed, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed, "expected to consume entire frame")
	assert.Equal(t, entry.Payload, df.Payload)
	assert.Equal(t, entry.PrevHash, df.PrevHash)

	decoded, err := entryFromDecodedFrame(df)
	require.NoError(t, err)
	assert.Equal(t, entry.OpNumber, decoded.OpNumber)
	assert.Equal(t, entry.Offset, decoded.Offset)
	assert.Equal(t, entry.EventType, decoded.EventType)
}

func TestDecodeFrameDetectsChecksumMismatch(t *testing.T) {
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	stream, err := ids.NewStreamId(tenant, 1)
	require.NoError(t, err)
	entry := LogEntry{
		OpNumber: 1, Tenant: tenant, Stream: stream, EventType: "append",
		Payload: []byte("x"), PrevHash: GenesisPrevHash(),
	}
	frame, err := EncodeFrame(entry)
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xFF

	_, _, err = DecodeFrame(frame)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeFrameDetectsShortFrame(t *testing.T) {
	_, _, err := DecodeFrame([]byte{1, 0, 0})
	assert.ErrorIs(t, err, ErrShortFrame)
}
