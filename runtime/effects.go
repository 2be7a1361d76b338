package runtime

import (
	"context"
	"encoding/binary"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
	"github.com/kimberlitedb/kimberlite-sub005/merkle"
)

// auditStreamSuffix is the reserved stream N every tenant's always-on
// audit stream lives at (§4.6: "audit records are first-class log
// entries, never a side table"). ^uint64(0) is outside any range a
// real client-assigned stream would plausibly reach, and is never
// zero, satisfying StreamId's non-zero constructor contract.
const auditStreamSuffix = ^uint64(0)

func auditStream(tenant ids.TenantId) ids.StreamId {
	s, err := ids.NewStreamId(tenant, auditStreamSuffix)
	if err != nil {
		// tenant is already validated by the time any effect reaches
		// here (the kernel rejected a zero tenant long before this).
		panic("runtime: audit stream construction: " + err.Error())
	}
	return s
}

// executeEffect performs one kernel.Effect against the durable log,
// key manager, erasure filter, and audit mirror. It is the only place
// a kernel.Effect crosses into I/O (§4.4: the kernel itself never
// performs its own effects).
func (r *Runtime) executeEffect(ctx context.Context, op ids.OpNumber, view ids.ViewNumber, timestamp int64, eff kernel.Effect) error {
	switch eff.Kind {
	case kernel.EffectAppend:
		_, err := r.appendEntry(eff.Stream, op, view, eff.Tenant, timestamp, "append", eff.Payload)
		return err

	case kernel.EffectStreamCreated:
		_, err := r.appendEntry(eff.Stream, op, view, eff.Tenant, timestamp, "stream_created", nil)
		return err

	case kernel.EffectStreamDropped:
		_, err := r.appendEntry(eff.Stream, op, view, eff.Tenant, timestamp, "stream_dropped", nil)
		return err

	case kernel.EffectErasure:
		if err := r.erasure.MarkErased(eff.Stream, eff.Offset); err != nil {
			return err
		}
		_, err := r.appendEntry(eff.Stream, op, view, eff.Tenant, timestamp, "erasure", encodeOffset(eff.Offset))
		return err

	case kernel.EffectKeyRotated:
		if r.keys != nil && !eff.Stream.IsZero() {
			return r.keys.Rotate(eff.Stream)
		}
		return nil

	case kernel.EffectReconfigured:
		return r.appendAudit(ctx, op, view, timestamp, eff.Tenant, "reconfigured", encodeReplicas(eff.NewReplicas))

	case kernel.EffectConsentRecorded, kernel.EffectBreachRecorded, kernel.EffectAuditRecord:
		return r.appendAudit(ctx, op, view, timestamp, eff.Tenant, eff.AuditEventType, []byte(eff.AuditDetail))

	default:
		return nil
	}
}

// appendAudit writes one entry to the tenant's always-on audit stream
// and, when an AuditSender is configured, mirrors it externally.
func (r *Runtime) appendAudit(ctx context.Context, op ids.OpNumber, view ids.ViewNumber, timestamp int64, tenant ids.TenantId, eventType string, detail []byte) error {
	if _, err := r.appendEntry(auditStream(tenant), op, view, tenant, timestamp, eventType, detail); err != nil {
		return err
	}
	if r.auditSender != nil {
		return r.auditSender.Send(ctx, tenant, eventType, string(detail))
	}
	return nil
}

// appendEntry writes one entry to stream's active segment, folds its
// chain hash into the stream's in-memory Merkle tree (kept in step with
// the durable log so a checkpoint's root always matches what Recover
// would reconstruct), and fans it out to any live subscribers.
func (r *Runtime) appendEntry(stream ids.StreamId, op ids.OpNumber, view ids.ViewNumber, tenant ids.TenantId, timestamp int64, eventType string, payload []byte) (ledger.LogEntry, error) {
	w, tree, err := r.writerFor(stream)
	if err != nil {
		return ledger.LogEntry{}, err
	}
	entry, err := w.Append(op, view, tenant, timestamp, eventType, payload)
	if err != nil {
		return ledger.LogEntry{}, err
	}
	if chainHash, err := entry.ChainHash(); err == nil {
		tree.Append(chainHash)
	}
	r.notifySubscribers(entry)
	return entry, nil
}

// writerFor returns the (lazily opened, recovery-scanned) segment
// writer for stream and its matching in-memory Merkle tree, caching
// both for subsequent appends.
func (r *Runtime) writerFor(stream ids.StreamId) (*ledger.Writer, *merkle.Tree, error) {
	r.writersMu.Lock()
	defer r.writersMu.Unlock()

	if w, ok := r.writers[stream]; ok {
		return w, r.merkleTrees[stream], nil
	}

	recovered, err := ledger.Recover(r.dataDir, stream, r.log)
	if err != nil {
		return nil, nil, err
	}
	w, err := ledger.NewWriter(r.dataDir, stream, r.syncMode, r.log, recovered)
	if err != nil {
		return nil, nil, err
	}
	tree := recovered.Tree
	if tree == nil {
		tree = merkle.New()
	}
	r.writers[stream] = w
	r.merkleTrees[stream] = tree
	return w, tree, nil
}

// publishCheckpoint signs and publishes a checkpoint for stream's
// current tail, using the in-memory Merkle tree kept in step with the
// durable log by appendEntry.
func (r *Runtime) publishCheckpoint(ctx context.Context, stream ids.StreamId) (string, error) {
	if r.checkpoints == nil {
		return "", ids.New(ids.KindApplication, "checkpoint publisher not configured")
	}
	w, tree, err := r.writerFor(stream)
	if err != nil {
		return "", err
	}
	headOffset, headHash := w.Tail()
	size := tree.Size()
	return r.checkpoints.Publish(ctx, stream, headOffset, headHash, size, tree.Root(size), r.now())
}

func encodeOffset(o ids.Offset) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(o))
	return b
}

func encodeReplicas(replicas []ids.ReplicaId) []byte {
	b := make([]byte, len(replicas))
	for i, r := range replicas {
		b[i] = byte(r)
	}
	return b
}
