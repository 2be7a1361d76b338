package wire

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// TenantClaims is the JWT claim set an AuthRequest.Token must carry: a
// tenant-scoped bearer token, validated against the server's signing
// key before the connection is admitted.
type TenantClaims struct {
	jwt.RegisteredClaims
	TenantId uint64 `json:"tenant_id"`
}

// TokenValidator validates an AuthRequest's bearer token and returns
// the tenant it authenticates for. A connection is admitted only if
// the token's tenant_id claim matches the AuthRequest's declared
// TenantId field — the two must agree, or the request is rejected as
// ErrAuthFailure.
type TokenValidator struct {
	key []byte
}

// NewTokenValidator constructs a validator against an HMAC signing key.
func NewTokenValidator(key []byte) *TokenValidator {
	return &TokenValidator{key: key}
}

// Validate parses and verifies token, then checks its tenant_id claim
// against declaredTenant.
func (v *TokenValidator) Validate(token string, declaredTenant ids.TenantId) (ids.TenantId, error) {
	claims := &TenantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wire: unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ids.ErrAuthFailure.WithContext("reason", "token parse/verify failed")
	}

	tenant, err := ids.NewTenantId(claims.TenantId)
	if err != nil {
		return 0, ids.ErrAuthFailure.WithContext("reason", "token carries no tenant claim")
	}
	if tenant != declaredTenant {
		return 0, ids.ErrAuthFailure.WithContext("reason", "declared tenant does not match token claim")
	}
	return tenant, nil
}

// IssueToken mints a bearer token for tenant, signed with the
// validator's key. Intended for tests and the dev-mode CLI; production
// token issuance lives in the client-facing auth service, outside this
// module's scope (§1).
func (v *TokenValidator) IssueToken(tenant ids.TenantId, clientInfo string) (string, error) {
	claims := TenantClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: clientInfo},
		TenantId:         tenant.Uint64(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}
