package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRequestRoundTrip(t *testing.T) {
	req := AppendRequest{
		Header:        RequestHeader{RequestId: 7, Op: OpAppend},
		Tenant:        1,
		Stream:        100,
		Payloads:      [][]byte{[]byte("alpha"), []byte("beta")},
		IdempotencyId: [16]byte{1, 2, 3},
	}
	encoded := EncodeAppendRequest(req)
	decoded, err := DecodeAppendRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req.Header.RequestId, decoded.Header.RequestId)
	assert.Equal(t, req.Tenant, decoded.Tenant)
	assert.Equal(t, req.Stream, decoded.Stream)
	assert.Equal(t, req.IdempotencyId, decoded.IdempotencyId)
	require.Len(t, decoded.Payloads, 2)
	assert.Equal(t, req.Payloads[0], decoded.Payloads[0])
	assert.Equal(t, req.Payloads[1], decoded.Payloads[1])
}

func TestReadResponseRoundTrip(t *testing.T) {
	resp := ReadResponse{
		Header: ResponseHeader{RequestId: 3, Code: CodeOK},
		Entries: []ReadEntry{
			{Offset: 0, Timestamp: 1000, EventType: "append", Payload: []byte("alpha")},
			{Offset: 1, Timestamp: 1001, EventType: "append", Payload: []byte("beta")},
		},
	}
	decoded, err := DecodeReadResponse(EncodeReadResponse(resp))
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, uint64(1), decoded.Entries[1].Offset)
	assert.Equal(t, "beta", string(decoded.Entries[1].Payload))
}

func TestAuthRequestResponseRoundTrip(t *testing.T) {
	req := AuthRequest{ProtocolVersion: ProtocolVersion, TenantId: 42, Token: "tok", ClientInfo: "test-client"}
	decodedReq, err := DecodeAuthRequest(EncodeAuthRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decodedReq)

	success := AuthResponse{Success: true, ClusterId: "cluster-a", LeaderHint: 1}
	decodedSuccess, err := DecodeAuthResponse(EncodeAuthResponse(success))
	require.NoError(t, err)
	assert.Equal(t, success, decodedSuccess)

	failure := AuthResponse{Success: false, Code: CodeAuthFailure, Message: "bad token"}
	decodedFailure, err := DecodeAuthResponse(EncodeAuthResponse(failure))
	require.NoError(t, err)
	assert.Equal(t, failure, decodedFailure)
}

func TestDecodeTruncatedPayloadFailsClosed(t *testing.T) {
	req := AppendRequest{Header: RequestHeader{RequestId: 1, Op: OpAppend}, Tenant: 1, Stream: 1, Payloads: [][]byte{[]byte("x")}}
	encoded := EncodeAppendRequest(req)
	_, err := DecodeAppendRequest(encoded[:len(encoded)-5])
	assert.ErrorIs(t, err, ErrTruncated)
}
