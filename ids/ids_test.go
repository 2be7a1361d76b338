package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenantIdRejectsZero(t *testing.T) {
	_, err := NewTenantId(0)
	require.Error(t, err)

	_, err = NewTenantId(1)
	require.NoError(t, err)
}

func TestNewStreamIdRequiresValidTenant(t *testing.T) {
	tenant, err := NewTenantId(7)
	require.NoError(t, err)

	_, err = NewStreamId(tenant, 0)
	require.Error(t, err)

	_, err = NewStreamId(0, 100)
	require.Error(t, err)

	s, err := NewStreamId(tenant, 100)
	require.NoError(t, err)
	assert.Equal(t, tenant, s.Tenant)
	assert.Equal(t, uint64(100), s.N)
}

func TestStreamIdKeyIsOrderPreserving(t *testing.T) {
	tenant, err := NewTenantId(1)
	require.NoError(t, err)

	a, err := NewStreamId(tenant, 2)
	require.NoError(t, err)
	b, err := NewStreamId(tenant, 10)
	require.NoError(t, err)

	assert.Less(t, a.Key(), b.Key(), "lexical order must match numeric order")
}

func TestNewIdempotencyIdRejectsZero(t *testing.T) {
	var zero [16]byte
	_, err := NewIdempotencyId(zero)
	require.Error(t, err)

	var nonZero [16]byte
	nonZero[0] = 1
	_, err = NewIdempotencyId(nonZero)
	require.NoError(t, err)
}

func TestNewReplicaIdRejectsSentinel(t *testing.T) {
	_, err := NewReplicaId(255)
	require.Error(t, err)

	_, err = NewReplicaId(0)
	require.NoError(t, err)
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, KindTransientIO.Retryable())
	assert.False(t, KindApplication.Retryable())
}

func TestErrorWithContextDoesNotMutateOriginal(t *testing.T) {
	base := ErrStreamNotFound
	derived := base.WithContext("offset", 42)
	assert.Empty(t, base.Context, "WithContext must not mutate the receiver")
	assert.Equal(t, 42, derived.Context["offset"])
}
