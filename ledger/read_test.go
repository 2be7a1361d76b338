package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
)

func TestReadRangeReturnsRequestedWindow(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	w, err := NewWriter(dir, stream, SyncFsync, logging.Nop(), nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := w.Append(ids.OpNumber(i), 0, stream.Tenant, int64(i), "append", []byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	entries, err := ReadRange(dir, stream, 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids.Offset(1), entries[0].Offset)
	assert.Equal(t, ids.Offset(2), entries[1].Offset)
}

func TestReadRangeOnUnknownStreamIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	entries, err := ReadRange(dir, testStream(t), 0, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadRangeStopsAtMaxCount(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	w, err := NewWriter(dir, stream, SyncFsync, logging.Nop(), nil)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, err := w.Append(ids.OpNumber(i), 0, stream.Tenant, int64(i), "append", nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	entries, err := ReadRange(dir, stream, 0, 3, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestReadRangeRedactsErasedPayload(t *testing.T) {
	dir := t.TempDir()
	stream := testStream(t)
	w, err := NewWriter(dir, stream, SyncFsync, logging.Nop(), nil)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := w.Append(ids.OpNumber(i), 0, stream.Tenant, int64(i), "append", []byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	erasure := NewErasureFilter()
	require.NoError(t, erasure.MarkErased(stream, 1))

	entries, err := ReadRange(dir, stream, 0, 3, erasure)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []byte{1}, entries[0].Payload, "offset 0 was never erased")
	assert.Nil(t, entries[1].Payload, "offset 1 was marked erased and must be redacted on read")
	assert.Equal(t, []byte{3}, entries[2].Payload, "offset 2 was never erased")
}
