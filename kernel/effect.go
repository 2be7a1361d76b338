package kernel

import "github.com/kimberlitedb/kimberlite-sub005/ids"

// EffectKind closes the Effect tagged sum: the outbound side effects
// the runtime must perform. Like CommandKind, this is an exhaustive,
// fixed set rather than an open hierarchy.
type EffectKind int

const (
	EffectAppend EffectKind = iota
	EffectStreamCreated
	EffectStreamDropped
	EffectErasure
	EffectConsentRecorded
	EffectBreachRecorded
	EffectKeyRotated
	EffectReconfigured
	EffectAuditRecord
)

// Effect is a single outbound side effect produced by Apply. The
// runtime executes these (log appends, projection updates, audit
// record emission, subscriber notification); the kernel never performs
// them itself.
type Effect struct {
	Kind   EffectKind
	Tenant ids.TenantId
	Stream ids.StreamId

	// EffectAppend / EffectErasure
	Offset  ids.Offset
	Payload []byte

	// EffectAuditRecord
	AuditEventType string
	AuditDetail    string

	// EffectKeyRotated
	KeyGeneration uint64

	// EffectReconfigured
	NewReplicas []ids.ReplicaId
}
