package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErasureFilterMarkAndMaybe(t *testing.T) {
	stream := testStream(t)
	f := NewErasureFilter()

	maybe, err := f.MaybeErased(stream, 42)
	require.NoError(t, err)
	assert.False(t, maybe, "expected definitely-not-erased before marking")

	require.NoError(t, f.MarkErased(stream, 42))

	maybe, err = f.MaybeErased(stream, 42)
	require.NoError(t, err)
	assert.True(t, maybe, "expected maybe-erased after marking")
}
