package kernel

import (
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
)

// Apply is the pure command-to-effect function: given a state, a
// command, and a runtime-supplied timestamp (never read from the wall
// clock inside this function), it returns the next state and the
// effects the runtime must perform. Every field the function consumes
// arrives through its arguments; it never consults a clock, a
// randomness source, or any global variable.
func Apply(state State, cmd Command, timestamp int64) (State, []Effect) {
	if !cmd.IdempotencyId.IsZero() && state.AlreadyApplied(cmd.Tenant, cmd.IdempotencyId) {
		// Applying a committed operation twice yields the same state
		// and zero additional effects (§8 property 10).
		return state, nil
	}

	next := state.Clone()
	var effects []Effect

	switch cmd.Kind {
	case CommandCreateStream:
		effects = applyCreateStream(&next, cmd)
	case CommandDropStream:
		effects = applyDropStream(&next, cmd)
	case CommandAppend:
		effects = applyAppend(&next, cmd)
	case CommandRecordConsent:
		effects = applyRecordConsent(&next, cmd)
	case CommandRecordErasure:
		effects = applyRecordErasure(&next, cmd)
	case CommandRecordBreach:
		effects = applyRecordBreach(&next, cmd)
	case CommandReconfigure:
		effects = applyReconfigure(&next, cmd)
	case CommandRotateKey:
		effects = applyRotateKey(&next, cmd)
	default:
		assert.Invariant(false, "kernel: unknown command kind %d", cmd.Kind)
	}

	assert.Invariant(len(effects) > 0,
		"kernel: command kind %d produced zero effects (op tenant=%d stream=%s)",
		cmd.Kind, cmd.Tenant, cmd.Stream)

	if !cmd.Stream.IsZero() {
		owner, ok := next.StreamTenant(cmd.Stream)
		assert.Invariant(!ok || owner == cmd.Tenant,
			"kernel: tenant isolation violated for stream %s: command tenant=%d owner=%d",
			cmd.Stream, cmd.Tenant, owner)
	}

	if !cmd.IdempotencyId.IsZero() {
		next.appliedOps[tenantIdempotencyKey{Tenant: cmd.Tenant, Id: cmd.IdempotencyId}] = struct{}{}
	}

	return next, effects
}

func applyCreateStream(state *State, cmd Command) []Effect {
	if _, exists := state.Streams[cmd.Stream]; exists {
		// create_stream requires the stream id be unique within tenant;
		// re-asserting an existing stream is an application error the
		// caller should have screened before submitting to the kernel,
		// but the kernel still must emit something deterministic rather
		// than silently no-op, per the "never zero effects" assertion.
		return []Effect{{
			Kind: EffectAuditRecord, Tenant: cmd.Tenant, Stream: cmd.Stream,
			AuditEventType: "create_stream_rejected", AuditDetail: "stream already exists",
		}}
	}

	state.Streams[cmd.Stream] = StreamMeta{
		Tenant:         cmd.Tenant,
		NextOffset:     0,
		Classification: cmd.Classification,
		RetentionDays:  cmd.RetentionDays,
	}
	if _, ok := state.Tenants[cmd.Tenant]; !ok {
		state.Tenants[cmd.Tenant] = TenantMeta{}
	}

	return []Effect{{Kind: EffectStreamCreated, Tenant: cmd.Tenant, Stream: cmd.Stream}}
}

func applyDropStream(state *State, cmd Command) []Effect {
	meta, exists := state.Streams[cmd.Stream]
	if !exists {
		return []Effect{{
			Kind: EffectAuditRecord, Tenant: cmd.Tenant, Stream: cmd.Stream,
			AuditEventType: "drop_stream_rejected", AuditDetail: "stream not found",
		}}
	}
	meta.Dropped = true
	state.Streams[cmd.Stream] = meta

	return []Effect{{Kind: EffectStreamDropped, Tenant: cmd.Tenant, Stream: cmd.Stream}}
}

func applyAppend(state *State, cmd Command) []Effect {
	meta, exists := state.Streams[cmd.Stream]
	if !exists || meta.Dropped {
		return []Effect{{
			Kind: EffectAuditRecord, Tenant: cmd.Tenant, Stream: cmd.Stream,
			AuditEventType: "append_rejected", AuditDetail: "stream not found",
		}}
	}

	effects := make([]Effect, 0, len(cmd.Payloads))
	offset := meta.NextOffset
	for _, payload := range cmd.Payloads {
		effects = append(effects, Effect{
			Kind: EffectAppend, Tenant: cmd.Tenant, Stream: cmd.Stream,
			Offset: offset, Payload: payload,
		})
		offset = offset.Next()
	}
	meta.NextOffset = offset
	state.Streams[cmd.Stream] = meta

	return effects
}

func applyRecordConsent(state *State, cmd Command) []Effect {
	return []Effect{{
		Kind: EffectConsentRecorded, Tenant: cmd.Tenant, Stream: cmd.Stream,
		AuditEventType: "consent_recorded",
		AuditDetail:    cmd.ConsentSubjectRef + ":" + cmd.ConsentScope,
	}}
}

func applyRecordErasure(state *State, cmd Command) []Effect {
	effects := make([]Effect, 0, len(cmd.ErasureOffsets)+1)
	for _, off := range cmd.ErasureOffsets {
		effects = append(effects, Effect{
			Kind: EffectErasure, Tenant: cmd.Tenant, Stream: cmd.Stream, Offset: off,
		})
	}
	// Erasure tombstones the named records; the original bytes are
	// never deleted. A downstream audit log entry is always emitted
	// alongside, never skipped.
	effects = append(effects, Effect{
		Kind: EffectAuditRecord, Tenant: cmd.Tenant, Stream: cmd.Stream,
		AuditEventType: "erasure_recorded",
	})
	return effects
}

func applyRecordBreach(state *State, cmd Command) []Effect {
	effects := []Effect{
		{Kind: EffectBreachRecorded, Tenant: cmd.Tenant, AuditEventType: "breach_detected", AuditDetail: cmd.BreachDescription},
		{Kind: EffectAuditRecord, Tenant: cmd.Tenant, AuditEventType: "breach_detected", AuditDetail: cmd.BreachDescription},
	}
	return effects
}

func applyReconfigure(state *State, cmd Command) []Effect {
	return []Effect{{
		Kind: EffectReconfigured, Tenant: cmd.Tenant, NewReplicas: cmd.ReconfigureNewReplicas,
	}}
}

func applyRotateKey(state *State, cmd Command) []Effect {
	tenant := state.Tenants[cmd.Tenant]
	tenant.KeyGeneration++
	state.Tenants[cmd.Tenant] = tenant

	return []Effect{{
		Kind: EffectKeyRotated, Tenant: cmd.Tenant, Stream: cmd.Stream,
		KeyGeneration: tenant.KeyGeneration,
	}}
}
