package kernel

import "github.com/kimberlitedb/kimberlite-sub005/ids"

// CommandKind closes the Command tagged sum: an exhaustive, fixed set
// of variants rather than an open-ended hierarchy, so serialization
// stays stable across implementations and switches over it can be
// exhaustive (§9).
type CommandKind int

const (
	CommandCreateStream CommandKind = iota
	CommandDropStream
	CommandAppend
	CommandRecordConsent
	CommandRecordErasure
	CommandRecordBreach
	CommandReconfigure
	CommandRotateKey
)

// Command is the inbound request the kernel converts into zero or more
// effects. Only the fields relevant to Kind are populated; this is a
// flat struct rather than a Go sum-of-structs so a closed switch over
// Kind is exhaustive at a single call site (apply.go).
type Command struct {
	Kind   CommandKind
	Tenant ids.TenantId

	// CreateStream / DropStream / Append / RotateKey
	Stream ids.StreamId

	// CreateStream
	Classification string
	RetentionDays  int32

	// Append
	Payloads [][]byte

	// RecordConsent
	ConsentSubjectRef string
	ConsentScope      string

	// RecordErasure
	ErasureOffsets []ids.Offset

	// RecordBreach
	BreachDescription     string
	BreachAffectedStreams []ids.StreamId

	// Reconfigure — carrier for the VSR membership command; the kernel
	// only records that a reconfiguration happened, never runs the
	// joint-consensus protocol itself (that lives in vsr).
	ReconfigureNewReplicas []ids.ReplicaId

	// Idempotency: when non-zero, applying the same (Tenant, Id) twice
	// must yield zero additional effects (§8 property 10).
	IdempotencyId ids.IdempotencyId
}
