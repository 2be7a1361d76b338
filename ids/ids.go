// Package ids defines the opaque identifier newtypes shared across the
// module: TenantId, StreamId, Offset, ViewNumber, OpNumber, ReplicaId,
// and IdempotencyId. Every constructor except NewReplicaId rejects the
// zero value, which is reserved to mean "absent" at call sites that use
// these types as map keys or optional fields; NewReplicaId accepts 0 and
// rejects the NoReplica sentinel instead.
package ids

import (
	"encoding/binary"
	"fmt"
)

// TenantId is the top-level isolation boundary. Valid range is 1..=u64 max.
type TenantId uint64

// NewTenantId constructs a TenantId, rejecting the zero value.
func NewTenantId(v uint64) (TenantId, error) {
	if v == 0 {
		return 0, ErrZeroValue("TenantId")
	}
	return TenantId(v), nil
}

func (t TenantId) Uint64() uint64 { return uint64(t) }
func (t TenantId) IsZero() bool   { return t == 0 }

// StreamId is an ordered sub-sequence within a tenant.
type StreamId struct {
	Tenant TenantId
	N      uint64
}

// NewStreamId constructs a StreamId. The tenant must already be valid;
// n must be non-zero (zero is reserved for "absent").
func NewStreamId(tenant TenantId, n uint64) (StreamId, error) {
	if tenant.IsZero() {
		return StreamId{}, ErrZeroValue("StreamId.Tenant")
	}
	if n == 0 {
		return StreamId{}, ErrZeroValue("StreamId.N")
	}
	return StreamId{Tenant: tenant, N: n}, nil
}

func (s StreamId) IsZero() bool { return s.Tenant.IsZero() && s.N == 0 }

func (s StreamId) String() string {
	return fmt.Sprintf("%d/%d", s.Tenant, s.N)
}

// Key returns a value safe to use as a map key or path component.
func (s StreamId) Key() string {
	return fmt.Sprintf("%020d-%020d", s.Tenant, s.N)
}

// Offset is a monotonic per-stream position, zero-based. Unlike the
// other newtypes, zero is a legitimate first offset; "absent" is
// represented by a separate bool or pointer at call sites, never
// overloaded onto Offset itself.
type Offset uint64

func (o Offset) Next() Offset { return o + 1 }

// ViewNumber is a monotonic per-cluster view counter, starting at 0.
type ViewNumber uint64

func (v ViewNumber) Next() ViewNumber { return v + 1 }

// OpNumber is a monotonic per-cluster operation counter. Zero means
// "no operation has been assigned yet"; the first real op is 1.
type OpNumber uint64

// NewOpNumber constructs an OpNumber, rejecting zero.
func NewOpNumber(v uint64) (OpNumber, error) {
	if v == 0 {
		return 0, ErrZeroValue("OpNumber")
	}
	return OpNumber(v), nil
}

func (o OpNumber) Next() OpNumber { return o + 1 }
func (o OpNumber) IsZero() bool   { return o == 0 }

// ReplicaId identifies a replica's position within a ClusterConfig.
// Valid range is 0..=254; 255 is reserved as a sentinel for "no
// replica" (e.g. "no leader known").
type ReplicaId uint8

const NoReplica ReplicaId = 255

// NewReplicaId constructs a ReplicaId, rejecting the reserved sentinel.
func NewReplicaId(v uint8) (ReplicaId, error) {
	if v == uint8(NoReplica) {
		return NoReplica, fmt.Errorf("ids: replica id %d is reserved", v)
	}
	return ReplicaId(v), nil
}

// IdempotencyId is a 128-bit client-generated request deduplication
// key, generated by clients via google/uuid and scoped per tenant (see
// DESIGN.md's Open Question resolution).
type IdempotencyId [16]byte

var zeroIdempotencyId IdempotencyId

// NewIdempotencyId constructs an IdempotencyId, rejecting the all-zero value.
func NewIdempotencyId(b [16]byte) (IdempotencyId, error) {
	if b == zeroIdempotencyId {
		return IdempotencyId{}, ErrZeroValue("IdempotencyId")
	}
	return IdempotencyId(b), nil
}

func (i IdempotencyId) IsZero() bool { return i == zeroIdempotencyId }

// TenantScopedIdempotencyKey pairs a tenant with an IdempotencyId, the
// per-tenant dedup scope of DESIGN.md's Open Question resolution. The
// kernel's dedup set (kernel/state.go) keys on its own unexported
// equivalent and does not use this type.
type TenantScopedIdempotencyKey struct {
	Tenant TenantId
	Id     IdempotencyId
}

// AppendUint64 writes v big-endian onto dst, for canonical-bytes
// construction where field order and width must be bit-exact.
func AppendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}
