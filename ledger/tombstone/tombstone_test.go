package tombstone

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func TestMarkAndMaybeErased(t *testing.T) {
	region := make([]byte, RegionBytes(800))
	require.NoError(t, Init(region, 100, 8, 4))

	erased := key("stream-1/offset-42")
	other := key("stream-1/offset-43")

	maybe, err := MaybeErased(region, 0, erased)
	require.NoError(t, err)
	assert.False(t, maybe, "expected definitely-not-erased before insertion")

	require.NoError(t, MarkErased(region, 0, erased))

	maybe, err = MaybeErased(region, 0, erased)
	require.NoError(t, err)
	assert.True(t, maybe, "expected maybe-erased after insertion")

	// other key is very likely still negative; bloom filters never
	// false-negative so this only checks the insertion didn't set every bit.
	maybe, err = MaybeErased(region, 0, other)
	require.NoError(t, err)
	if maybe {
		t.Log("false positive for unrelated key (acceptable, but worth noting if frequent)")
	}
}

func TestMarkErasedRejectsWrongElementSize(t *testing.T) {
	region := make([]byte, RegionBytes(80))
	_ = Init(region, 10, 8, 4)
	assert.ErrorIs(t, MarkErased(region, 0, []byte("short")), ErrBadElemSize)
}

func TestMaybeErasedOnUninitializedRegion(t *testing.T) {
	region := make([]byte, RegionBytes(80))
	_, err := MaybeErased(region, 0, key("x"))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestFilterIndexOutOfRange(t *testing.T) {
	region := make([]byte, RegionBytes(80))
	_ = Init(region, 10, 8, 4)
	_, err := MaybeErased(region, Filters, key("x"))
	assert.ErrorIs(t, err, ErrBadFilterIndex)
}
