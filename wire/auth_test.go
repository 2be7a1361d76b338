package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

func TestTokenValidatorAcceptsMatchingTenant(t *testing.T) {
	v := NewTokenValidator([]byte("test-signing-key"))
	tenant, err := ids.NewTenantId(7)
	require.NoError(t, err)
	token, err := v.IssueToken(tenant, "test-client")
	require.NoError(t, err)

	got, err := v.Validate(token, tenant)
	require.NoError(t, err)
	assert.Equal(t, tenant, got)
}

func TestTokenValidatorRejectsTenantMismatch(t *testing.T) {
	v := NewTokenValidator([]byte("test-signing-key"))
	issuedTenant, err := ids.NewTenantId(7)
	require.NoError(t, err)
	declaredTenant, err := ids.NewTenantId(8)
	require.NoError(t, err)
	token, err := v.IssueToken(issuedTenant, "test-client")
	require.NoError(t, err)

	_, err = v.Validate(token, declaredTenant)
	assert.Error(t, err, "expected validation to fail on tenant mismatch")
}

func TestTokenValidatorRejectsBadSignature(t *testing.T) {
	v1 := NewTokenValidator([]byte("key-one"))
	v2 := NewTokenValidator([]byte("key-two"))
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	token, err := v1.IssueToken(tenant, "test-client")
	require.NoError(t, err)

	_, err = v2.Validate(token, tenant)
	assert.Error(t, err, "expected validation to fail under a different signing key")
}
