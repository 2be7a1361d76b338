package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kimberlitedb/kimberlite-sub005/clock"
	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
	"github.com/kimberlitedb/kimberlite-sub005/ledger"
	"github.com/kimberlitedb/kimberlite-sub005/merkle"
	"github.com/kimberlitedb/kimberlite-sub005/vsr"
)

const (
	electionTimerID  = "election"
	heartbeatTimerID = "heartbeat"

	// electionTimeout and heartbeatInterval are the teacher's fixed,
	// unrandomized timer values. A production cluster would jitter the
	// election timeout per replica to avoid livelock; tracked as a
	// follow-up rather than modeled here.
	electionTimeout   = 500 * time.Millisecond
	heartbeatInterval = 150 * time.Millisecond
)

// Runtime drives a single replica end to end: it owns the VSR state
// machine, the deterministic kernel's applied State, the per-stream
// ledger writers, the key manager, the erasure filter, and the clock
// epoch, and is the only component that touches the network, the
// disk, or wall-clock time (§4.6, §5).
type Runtime struct {
	replica *vsr.Replica
	state   kernel.State

	// lastApplied is the highest op number this replica has already run
	// through kernel.Apply. Every op in (lastApplied, replica.CommitNumber]
	// is committed but not yet applied, and catchUpApply drives it forward.
	lastApplied ids.OpNumber

	transport   Transport
	queue       *EventQueue
	epoch       *clock.Epoch
	keys        *kcrypto.KeyManager
	erasure     *ledger.ErasureFilter
	auditSender AuditSender
	log         logging.Logger

	dataDir  string
	syncMode ledger.SyncMode

	writersMu   sync.Mutex
	writers     map[ids.StreamId]*ledger.Writer
	merkleTrees map[ids.StreamId]*merkle.Tree

	pendingMu sync.Mutex
	nextReqID uint64
	pending   map[uint64]chan pendingResult
	reqByOp   map[ids.OpNumber]uint64

	subsMu sync.Mutex
	subs   map[ids.StreamId][]*subscriber

	checkpoints *ledger.CheckpointPublisher
}

// pendingResult is what a SubmitAndWait caller receives once its
// command's op has either failed to propose or been applied.
type pendingResult struct {
	effects []kernel.Effect
	err     error
}

// Config bundles the collaborators a Runtime needs at construction: a
// fresh vsr.Replica for this node's ID and cluster configuration, the
// durable-log directory, key manager, erasure filter, transport, and
// (optional) external audit mirror.
type Config struct {
	Replica     *vsr.Replica
	DataDir     string
	SyncMode    ledger.SyncMode
	Transport   Transport
	Keys        *kcrypto.KeyManager
	Erasure     *ledger.ErasureFilter
	AuditSender AuditSender
	Epoch       *clock.Epoch
	Log         logging.Logger
	QueueDepth  int
	Checkpoints *ledger.CheckpointPublisher
}

// New constructs a Runtime ready to Run. The erasure filter and key
// manager are optional; a nil AuditSender simply disables the external
// audit mirror.
func New(cfg Config) *Runtime {
	assert.Invariant(cfg.Replica != nil, "runtime: replica must not be nil")
	assert.Invariant(cfg.Transport != nil, "runtime: transport must not be nil")
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	erasure := cfg.Erasure
	if erasure == nil {
		erasure = ledger.NewErasureFilter()
	}
	return &Runtime{
		replica:     cfg.Replica,
		state:       kernel.NewState(),
		transport:   cfg.Transport,
		queue:       NewEventQueue(depth),
		epoch:       cfg.Epoch,
		keys:        cfg.Keys,
		erasure:     erasure,
		auditSender: cfg.AuditSender,
		log:         cfg.Log,
		dataDir:     cfg.DataDir,
		syncMode:    cfg.SyncMode,
		writers:     make(map[ids.StreamId]*ledger.Writer),
		merkleTrees: make(map[ids.StreamId]*merkle.Tree),
		pending:     make(map[uint64]chan pendingResult),
		reqByOp:     make(map[ids.OpNumber]uint64),
		subs:        make(map[ids.StreamId][]*subscriber),
		checkpoints: cfg.Checkpoints,
	}
}

// Submit enqueues a client-originated command without waiting for it
// to be applied. Safe from any goroutine.
func (r *Runtime) Submit(cmd kernel.Command) {
	r.queue.Push(ClientCommandEvent{Cmd: cmd})
}

// SubmitAndWait enqueues cmd and blocks until either this replica
// rejects it (not the leader, a malformed reconfiguration, ...) or the
// command is actually applied through the kernel, returning the
// effects Apply produced. This is what the client-facing protocol
// server uses to turn a wire request into a synchronous response.
func (r *Runtime) SubmitAndWait(ctx context.Context, cmd kernel.Command) ([]kernel.Effect, error) {
	ch := make(chan pendingResult, 1)

	r.pendingMu.Lock()
	r.nextReqID++
	reqID := r.nextReqID
	r.pending[reqID] = ch
	r.pendingMu.Unlock()

	r.queue.Push(ClientCommandEvent{Cmd: cmd, ReqID: reqID})

	select {
	case res := <-ch:
		return res.effects, res.err
	case <-ctx.Done():
		r.pendingMu.Lock()
		delete(r.pending, reqID)
		r.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// resolvePending delivers res to the caller awaiting reqID, if any.
func (r *Runtime) resolvePending(reqID uint64, res pendingResult) {
	if reqID == 0 {
		return
	}
	r.pendingMu.Lock()
	ch, ok := r.pending[reqID]
	if ok {
		delete(r.pending, reqID)
	}
	r.pendingMu.Unlock()
	if ok {
		ch <- res
	}
}

// Deliver enqueues an inbound protocol message from another replica.
// Safe from any goroutine.
func (r *Runtime) Deliver(from ids.ReplicaId, msg interface{}) {
	r.queue.Push(InboundMessageEvent{From: from, Message: msg})
}

// Run drives the replica's single-threaded event loop until ctx is
// done. Every VSR transition, kernel apply, and effect execution for
// this replica happens on this one goroutine (§5: no replica-internal
// concurrency).
func (r *Runtime) Run(ctx context.Context) error {
	r.queue.ScheduleTimer(electionTimerID, time.Now().Add(electionTimeout))
	if r.replica.IsLeader() {
		r.queue.ScheduleTimer(heartbeatTimerID, time.Now().Add(heartbeatInterval))
	}

	for {
		ev, ok := r.queue.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := r.handle(ctx, ev); err != nil {
			if errors.Is(err, ids.ErrLogCorrupt) {
				return err
			}
			r.log.Warnw("runtime: event handling failed", "error", err)
		}
	}
}

func (r *Runtime) handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case ClientCommandEvent:
		return r.handleClientCommand(e.Cmd, e.ReqID)
	case InboundMessageEvent:
		return r.handleInbound(ctx, e)
	case TimerEvent:
		return r.handleTimer(e)
	default:
		return nil
	}
}

func (r *Runtime) handleClientCommand(cmd kernel.Command, reqID uint64) error {
	if !r.replica.IsLeader() {
		r.resolvePending(reqID, pendingResult{err: vsr.ErrNotLeader})
		return vsr.ErrNotLeader
	}
	out, err := r.replica.Propose(cmd)
	if err != nil {
		r.resolvePending(reqID, pendingResult{err: err})
		return err
	}
	if reqID != 0 {
		r.reqByOp[r.replica.OpNumber] = reqID
	}
	// The leader counts its own vote by broadcasting Prepare and then
	// immediately handling the PrepareOk it owes itself, rather than
	// special-casing a self-ack path through the network.
	if err := dispatch(r.transport, out); err != nil {
		return err
	}
	return r.handlePrepareOkLocal(vsr.PrepareOk{View: r.replica.View, Op: r.replica.OpNumber, Replica: r.replica.ID})
}

func (r *Runtime) handleInbound(ctx context.Context, e InboundMessageEvent) error {
	switch m := e.Message.(type) {
	case vsr.Prepare:
		out, err := r.replica.HandlePrepare(m)
		if err != nil {
			return err
		}
		return dispatch(r.transport, out)

	case vsr.PrepareOk:
		return r.handlePrepareOkLocal(m)

	case vsr.Commit:
		newlyCommitted, err := r.replica.HandleCommit(m)
		if err != nil {
			return err
		}
		return r.catchUpApply(ctx, newlyCommitted)

	case vsr.StartViewChange:
		out, err := r.replica.HandleStartViewChange(m)
		if err != nil {
			return err
		}
		if out != nil {
			return dispatch(r.transport, *out)
		}
		return nil

	case vsr.DoViewChange:
		out, err := r.replica.HandleDoViewChange(m)
		if err != nil {
			return err
		}
		if out != nil {
			return dispatch(r.transport, *out)
		}
		return nil

	case vsr.StartView:
		if err := r.replica.HandleStartView(m); err != nil {
			return err
		}
		return r.catchUpApply(ctx, opsUpTo(r.lastApplied, r.replica.CommitNumber))

	case vsr.Recovery:
		resp := r.replica.HandleRecovery(m)
		return r.transport.Send(m.Replica, resp)

	case vsr.RecoveryResponse:
		done, err := r.replica.HandleRecoveryResponse(m)
		if err != nil || !done {
			return err
		}
		return r.catchUpApply(ctx, opsUpTo(r.lastApplied, r.replica.CommitNumber))

	case vsr.StateTransferRequest:
		resp := r.replica.HandleStateTransferRequest(m)
		return r.transport.Send(m.Replica, resp)

	case vsr.StateTransferResponse:
		r.replica.HandleStateTransferResponse(m)
		return r.catchUpApply(ctx, opsUpTo(r.lastApplied, r.replica.CommitNumber))

	default:
		return nil
	}
}

func (r *Runtime) handlePrepareOkLocal(ok vsr.PrepareOk) error {
	outs, newlyCommitted, err := r.replica.HandlePrepareOk(ok)
	if err != nil {
		return err
	}
	if err := dispatchAll(r.transport, outs); err != nil {
		return err
	}
	return r.catchUpApply(context.Background(), newlyCommitted)
}

func (r *Runtime) handleTimer(e TimerEvent) error {
	switch e.ID {
	case electionTimerID:
		if !r.replica.IsLeader() {
			out := vsr.Outbound{Broadcast: true, Message: r.replica.BeginViewChange()}
			if err := dispatch(r.transport, out); err != nil {
				return err
			}
		}
		r.queue.ScheduleTimer(electionTimerID, time.Now().Add(electionTimeout))
		return nil

	case heartbeatTimerID:
		if r.replica.IsLeader() {
			commit := vsr.Commit{View: r.replica.View, CommitNumber: r.replica.CommitNumber}
			if err := r.transport.Broadcast(commit); err != nil {
				return err
			}
			r.queue.ScheduleTimer(heartbeatTimerID, time.Now().Add(heartbeatInterval))
		}
		return nil

	default:
		return nil
	}
}

// catchUpApply runs kernel.Apply for every newly-committed op, in
// order, executing the effects each produces. A gap between
// lastApplied and the lowest newly-committed op signals missing
// entries; the replica asks the leader for a state transfer to fill it
// rather than applying out of order.
func (r *Runtime) catchUpApply(ctx context.Context, newlyCommitted []ids.OpNumber) error {
	if len(newlyCommitted) == 0 {
		return nil
	}
	for _, op := range newlyCommitted {
		if op <= r.lastApplied {
			continue
		}
		entry, ok := r.replica.Log[op]
		if !ok {
			req := vsr.StateTransferRequest{FromOp: r.lastApplied.Next(), ToOp: op, Replica: r.replica.ID}
			return r.transport.Send(r.replica.Leader(), req)
		}
		if entry.Op != r.lastApplied.Next() {
			req := vsr.StateTransferRequest{FromOp: r.lastApplied.Next(), ToOp: entry.Op, Replica: r.replica.ID}
			return r.transport.Send(r.replica.Leader(), req)
		}

		timestamp := r.now()
		next, effects := kernel.Apply(r.state, entry.Command, timestamp)
		r.state = next
		r.lastApplied = entry.Op

		var applyErr error
		for _, eff := range effects {
			if err := r.executeEffect(ctx, entry.Op, entry.View, timestamp, eff); err != nil {
				applyErr = err
				break
			}
		}

		if reqID, ok := r.reqByOp[entry.Op]; ok {
			delete(r.reqByOp, entry.Op)
			r.resolvePending(reqID, pendingResult{effects: effects, err: applyErr})
		}
		if applyErr != nil {
			return applyErr
		}
	}
	return nil
}

func (r *Runtime) now() int64 {
	if r.epoch == nil {
		return time.Now().UnixMilli()
	}
	return r.epoch.Now()
}

func opsUpTo(from, to ids.OpNumber) []ids.OpNumber {
	if to <= from {
		return nil
	}
	out := make([]ids.OpNumber, 0, int(to)-int(from))
	for op := from.Next(); op <= to; op = op.Next() {
		out = append(out, op)
	}
	return out
}
