package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
)

func testStream(t *testing.T) ids.StreamId {
	t.Helper()
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	stream, err := ids.NewStreamId(tenant, 100)
	require.NoError(t, err)
	return stream
}

func TestWriterAppendAndRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	log := logging.Nop()

	w, err := NewWriter(dir, stream, SyncFsync, log, nil)
	require.NoError(t, err)

	var lastOffset ids.Offset
	for i := 1; i <= 5; i++ {
		entry, err := w.Append(ids.OpNumber(i), 0, stream.Tenant, int64(1000+i), "append", []byte("payload"))
		require.NoError(t, err)
		lastOffset = entry.Offset
	}
	require.NoError(t, w.Close())

	recovered, err := Recover(dir, stream, log)
	require.NoError(t, err)
	assert.Equal(t, ids.OpNumber(5), recovered.LastOpNumber)
	assert.Equal(t, lastOffset.Next(), recovered.NextOffset)
}

func TestOffsetsAreStrictlyIncreasingAndGapFree(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	w, err := NewWriter(dir, stream, SyncFsync, logging.Nop(), nil)
	require.NoError(t, err)
	defer w.Close()

	var offsets []ids.Offset
	for i := 1; i <= 4; i++ {
		entry, err := w.Append(ids.OpNumber(i), 0, stream.Tenant, 1, "append", nil)
		require.NoError(t, err)
		offsets = append(offsets, entry.Offset)
	}
	for i := 1; i < len(offsets); i++ {
		assert.Equal(t, offsets[i-1].Next(), offsets[i], "offsets not contiguous: %v", offsets)
	}
}

func TestHashChainContinuityAcrossEntries(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	w, err := NewWriter(dir, stream, SyncFsync, logging.Nop(), nil)
	require.NoError(t, err)
	defer w.Close()

	e1, err := w.Append(1, 0, stream.Tenant, 1, "append", []byte("a"))
	require.NoError(t, err)
	e2, err := w.Append(2, 0, stream.Tenant, 2, "append", []byte("b"))
	require.NoError(t, err)

	chain1, err := e1.ChainHash()
	require.NoError(t, err)
	assert.Equal(t, chain1, e2.PrevHash, "e2.PrevHash must equal hash of e1's canonical bytes")
}

// TestTornWriteRecoveryTruncates implements Scenario F: a process dies
// mid-frame-write; recovery must detect the partial tail and truncate
// to the last valid entry.
func TestTornWriteRecoveryTruncates(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	log := logging.Nop()

	w, err := NewWriter(dir, stream, SyncFsync, log, nil)
	require.NoError(t, err)
	_, err = w.Append(1, 0, stream.Tenant, 1, "append", []byte("first"))
	require.NoError(t, err)
	validSize := w.segmentSize

	frame, err := EncodeFrame(LogEntry{
		OpNumber: 2, View: 0, Tenant: stream.Tenant, Stream: stream, Offset: 1,
		Timestamp: 2, EventType: "append", Payload: []byte("second"), PrevHash: w.tailPrevHash,
	})
	require.NoError(t, err)
	// Simulate a torn write: only the first 11 bytes of the frame hit disk.
	torn := frame[:11]
	_, err = w.file.WriteAt(torn, validSize)
	require.NoError(t, err)
	require.NoError(t, w.file.Sync())
	require.NoError(t, w.Close())

	recovered, err := Recover(dir, stream, log)
	require.NoError(t, err)
	assert.Equal(t, ids.OpNumber(1), recovered.LastOpNumber, "expected recovery to stop at op 1")

	segPath := filepath.Join(dir, filepath.FromSlash(segmentPath(stream, 1)))
	info, err := os.Stat(segPath)
	require.NoError(t, err)
	assert.Equal(t, validSize, info.Size(), "expected segment truncated")
}

func TestMidSegmentCorruptionIsFatalInTailSegment(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	log := logging.Nop()

	w, err := NewWriter(dir, stream, SyncFsync, log, nil)
	require.NoError(t, err)
	_, err = w.Append(1, 0, stream.Tenant, 1, "append", []byte("a"))
	require.NoError(t, err)
	_, err = w.Append(2, 0, stream.Tenant, 2, "append", []byte("b"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	segPath := filepath.Join(dir, filepath.FromSlash(segmentPath(stream, 1)))
	data, err := os.ReadFile(segPath)
	require.NoError(t, err)
	// Flip a byte inside the first frame's body, past the length
	// prefix, to produce a checksum mismatch on a complete frame.
	data[10] ^= 0xFF
	require.NoError(t, os.WriteFile(segPath, data, 0o644))

	_, err = Recover(dir, stream, log)
	assert.Error(t, err, "expected recovery to fail fatally on mid-segment corruption")
}
