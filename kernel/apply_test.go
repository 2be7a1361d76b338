package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

func testTenant(t *testing.T, n uint64) ids.TenantId {
	t.Helper()
	tenant, err := ids.NewTenantId(n)
	require.NoError(t, err)
	return tenant
}

func testStream(t *testing.T, tenant ids.TenantId, n uint64) ids.StreamId {
	t.Helper()
	stream, err := ids.NewStreamId(tenant, n)
	require.NoError(t, err)
	return stream
}

func TestCreateStreamThenAppendAssignsSequentialOffsets(t *testing.T) {
	state := NewState()
	tenant := testTenant(t, 1)
	stream := testStream(t, tenant, 1)

	state, effects := Apply(state, Command{Kind: CommandCreateStream, Tenant: tenant, Stream: stream}, 0)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectStreamCreated, effects[0].Kind)

	state, effects = Apply(state, Command{
		Kind: CommandAppend, Tenant: tenant, Stream: stream,
		Payloads: [][]byte{[]byte("a"), []byte("b"), []byte("c")},
	}, 0)
	require.Len(t, effects, 3, "expected 3 append effects")
	for i, eff := range effects {
		assert.Equal(t, EffectAppend, eff.Kind, "effect %d", i)
		assert.Equal(t, ids.Offset(i), eff.Offset, "effect %d", i)
	}
	assert.Equal(t, ids.Offset(3), state.Streams[stream].NextOffset)
}

func TestAppendToUnknownStreamIsRejectedNotPanicked(t *testing.T) {
	state := NewState()
	tenant := testTenant(t, 1)
	stream := testStream(t, tenant, 1)

	_, effects := Apply(state, Command{
		Kind: CommandAppend, Tenant: tenant, Stream: stream, Payloads: [][]byte{[]byte("x")},
	}, 0)
	require.Len(t, effects, 1, "expected a single audit rejection effect")
	assert.Equal(t, EffectAuditRecord, effects[0].Kind)
}

func TestIdempotentApplyYieldsSameStateAndZeroEffects(t *testing.T) {
	state := NewState()
	tenant := testTenant(t, 1)
	stream := testStream(t, tenant, 1)
	idemp, err := ids.NewIdempotencyId([16]byte{1})
	require.NoError(t, err)

	cmd := Command{Kind: CommandCreateStream, Tenant: tenant, Stream: stream, IdempotencyId: idemp}

	first, effects := Apply(state, cmd, 0)
	require.Len(t, effects, 1, "expected one effect on first application")

	second, effects := Apply(first, cmd, 0)
	assert.Empty(t, effects, "expected zero effects on replay")
	assert.Equal(t, first.Streams, second.Streams, "state diverged across replay")
}

func TestErasureEmitsTombstoneAndAuditEffectsWithoutDeletingData(t *testing.T) {
	state := NewState()
	tenant := testTenant(t, 1)
	stream := testStream(t, tenant, 1)
	state, _ = Apply(state, Command{Kind: CommandCreateStream, Tenant: tenant, Stream: stream}, 0)
	state, _ = Apply(state, Command{
		Kind: CommandAppend, Tenant: tenant, Stream: stream,
		Payloads: [][]byte{[]byte("a"), []byte("b")},
	}, 0)

	_, effects := Apply(state, Command{
		Kind: CommandRecordErasure, Tenant: tenant, Stream: stream,
		ErasureOffsets: []ids.Offset{0},
	}, 0)

	require.Len(t, effects, 2, "expected erasure effect + audit effect")
	assert.Equal(t, EffectErasure, effects[0].Kind)
	assert.Equal(t, ids.Offset(0), effects[0].Offset)
	assert.Equal(t, EffectAuditRecord, effects[1].Kind, "expected trailing audit effect")
}

func TestRotateKeyIncrementsGeneration(t *testing.T) {
	state := NewState()
	tenant := testTenant(t, 1)

	state, effects := Apply(state, Command{Kind: CommandRotateKey, Tenant: tenant}, 0)
	require.NotEmpty(t, effects)
	assert.Equal(t, uint64(1), effects[0].KeyGeneration)

	_, effects = Apply(state, Command{Kind: CommandRotateKey, Tenant: tenant}, 0)
	require.NotEmpty(t, effects)
	assert.Equal(t, uint64(2), effects[0].KeyGeneration)
}

func TestUnknownCommandKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		Apply(NewState(), Command{Kind: CommandKind(99)}, 0)
	})
}
