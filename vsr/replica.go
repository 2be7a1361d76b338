// Package vsr implements the Viewstamped Replication replica state
// machine: normal operation, view change with deterministic tie-break,
// crash recovery with a replay-guarded nonce, state transfer, and
// joint-consensus cluster reconfiguration. It depends only on ids,
// kernel (for the Command carried inside each log entry), ledger
// (for the default segment size the Byzantine-resistance log-tail
// bound is derived from), and kcrypto (for the entry checksum used in
// the view-change tie-break) — never on the network or disk directly.
// Those belong to runtime, the only component allowed to touch them.
package vsr

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
)

// Status is the replica's current protocol phase.
type Status int

const (
	StatusNormal Status = iota
	StatusViewChange
	StatusRecovering
)

// Replica is one node's VSR state. All methods are synchronous and
// single-threaded: the runtime serializes every inbound message
// through one event queue per replica before calling into it (§5).
type Replica struct {
	ID             ids.ReplicaId
	Status         Status
	View           ids.ViewNumber
	LastNormalView ids.ViewNumber
	OpNumber       ids.OpNumber
	CommitNumber   ids.OpNumber
	Log            map[ids.OpNumber]Entry
	Reconfig       ReconfigState

	log logging.Logger

	prepareOkVotes       map[ids.OpNumber]map[ids.ReplicaId]bool
	startViewChangeVotes map[ids.ViewNumber]map[ids.ReplicaId]bool
	doViewChangeMsgs     map[ids.ViewNumber][]DoViewChange
	doViewChangeDone     map[ids.ViewNumber]bool

	recoveryNonce     [16]byte
	recoveryResponses []RecoveryResponse
}

// NewReplica constructs a replica starting in Normal status at view 0,
// a member of the stable configuration cfg.
func NewReplica(id ids.ReplicaId, cfg Config, log logging.Logger) *Replica {
	return &Replica{
		ID:                   id,
		Status:               StatusNormal,
		Reconfig:             StableState(cfg),
		Log:                  make(map[ids.OpNumber]Entry),
		log:                  log,
		prepareOkVotes:       make(map[ids.OpNumber]map[ids.ReplicaId]bool),
		startViewChangeVotes: make(map[ids.ViewNumber]map[ids.ReplicaId]bool),
		doViewChangeMsgs:     make(map[ids.ViewNumber][]DoViewChange),
		doViewChangeDone:     make(map[ids.ViewNumber]bool),
	}
}

// Leader returns the deterministic leader for the replica's current view.
func (r *Replica) Leader() ids.ReplicaId {
	return r.Reconfig.LeaderElectionConfig().Leader(r.View)
}

// IsLeader reports whether this replica is the leader for its current view.
func (r *Replica) IsLeader() bool {
	return r.Status == StatusNormal && r.Leader() == r.ID
}

func (r *Replica) logTailEntries() []Entry {
	out := make([]Entry, 0, len(r.Log))
	for _, e := range r.Log {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// Propose is the leader-only entry point for a freshly-accepted client
// command: assigns the next op number, appends the tentative entry to
// the local log, and returns the Prepare to broadcast.
func (r *Replica) Propose(cmd kernel.Command) (Outbound, error) {
	if !r.IsLeader() {
		return Outbound{}, ErrNotLeader
	}
	var newCfg Config
	if cmd.Kind == kernel.CommandReconfigure {
		if r.Reconfig.Joint {
			return Outbound{}, ErrAlreadyJoint
		}
		var err error
		newCfg, err = NewConfig(cmd.ReconfigureNewReplicas)
		if err != nil {
			return Outbound{}, err
		}
	}

	op := r.OpNumber.Next()
	entry := Entry{View: r.View, Op: op, Command: cmd}
	r.OpNumber = op
	r.Log[op] = entry
	r.prepareOkVotes[op] = map[ids.ReplicaId]bool{r.ID: true}

	if cmd.Kind == kernel.CommandReconfigure {
		r.Reconfig = ReconfigState{Joint: true, Old: r.Reconfig.New, New: newCfg, JointOp: op}
	}

	return broadcast(Prepare{View: r.View, Entry: entry}), nil
}

// HandlePrepare is the follower-side handler for an inbound Prepare.
// An op number that does not immediately follow the local tail signals
// a gap the caller must resolve with a state transfer request.
func (r *Replica) HandlePrepare(p Prepare) (Outbound, error) {
	if r.Status != StatusNormal {
		return Outbound{}, ErrNotNormal
	}
	if p.View != r.View {
		return Outbound{}, ErrWrongView
	}
	if p.Entry.Op != r.OpNumber.Next() {
		return Outbound{}, ErrUnexpectedOp
	}

	var newCfg Config
	if p.Entry.Command.Kind == kernel.CommandReconfigure {
		var err error
		newCfg, err = NewConfig(p.Entry.Command.ReconfigureNewReplicas)
		if err != nil {
			return Outbound{}, err
		}
	}

	r.OpNumber = p.Entry.Op
	r.Log[p.Entry.Op] = p.Entry

	if p.Entry.Command.Kind == kernel.CommandReconfigure {
		r.Reconfig = ReconfigState{Joint: true, Old: r.Reconfig.New, New: newCfg, JointOp: p.Entry.Op}
	}

	return unicast(r.Leader(), PrepareOk{View: r.View, Op: p.Entry.Op, Replica: r.ID}), nil
}

// HandlePrepareOk is the leader-side quorum collector. It returns any
// newly-committed op numbers (for the runtime to hand to the kernel,
// in order) plus the outbound messages the quorum crossing produces —
// a Commit broadcast, and, if a joint reconfiguration's op just
// committed and the outgoing leader is no longer in the new
// configuration, a locally-triggered StartViewChange (§9
// reconfigure-removes-leader rule).
func (r *Replica) HandlePrepareOk(ok PrepareOk) ([]Outbound, []ids.OpNumber, error) {
	if !r.IsLeader() {
		return nil, nil, ErrNotLeader
	}
	if ok.View != r.View {
		return nil, nil, ErrWrongView
	}
	if _, exists := r.Log[ok.Op]; !exists {
		return nil, nil, ErrUnknownOp
	}

	votes, exists := r.prepareOkVotes[ok.Op]
	if !exists {
		votes = make(map[ids.ReplicaId]bool)
		r.prepareOkVotes[ok.Op] = votes
	}
	votes[ok.Replica] = true
	votes[r.ID] = true

	var newlyCommitted []ids.OpNumber
	for next := r.CommitNumber.Next(); next <= r.OpNumber; next = next.Next() {
		v, exists := r.prepareOkVotes[next]
		if !exists || !r.Reconfig.QuorumSatisfied(v) {
			break
		}
		assert.Invariant(next <= r.OpNumber, "vsr: commit_number must never exceed op_number")
		r.CommitNumber = next
		newlyCommitted = append(newlyCommitted, next)
	}
	if len(newlyCommitted) == 0 {
		return nil, nil, nil
	}

	out := []Outbound{broadcast(Commit{View: r.View, CommitNumber: r.CommitNumber})}

	if r.Reconfig.Joint && r.CommitNumber == r.Reconfig.JointOp {
		oldLeader := r.Reconfig.Old.Leader(r.View)
		newCfg := r.Reconfig.New
		r.Reconfig = StableState(newCfg)
		if !newCfg.Contains(oldLeader) {
			out = append(out, broadcast(r.BeginViewChange()))
		}
	}

	return out, newlyCommitted, nil
}

// HandleCommit is the follower-side handler for an inbound Commit. A
// commit_number ahead of the local op_number signals a gap requiring
// state transfer.
func (r *Replica) HandleCommit(c Commit) ([]ids.OpNumber, error) {
	if c.View != r.View {
		return nil, ErrWrongView
	}
	if c.CommitNumber > r.OpNumber {
		return nil, ErrUnexpectedOp
	}

	var newlyCommitted []ids.OpNumber
	for next := r.CommitNumber.Next(); next <= c.CommitNumber; next = next.Next() {
		assert.Invariant(next <= r.OpNumber, "vsr: commit_number must never exceed op_number")
		r.CommitNumber = next
		newlyCommitted = append(newlyCommitted, next)
	}
	return newlyCommitted, nil
}

// BeginViewChange moves the replica into ViewChange status for the
// next view and returns the StartViewChange to broadcast.
func (r *Replica) BeginViewChange() StartViewChange {
	r.Status = StatusViewChange
	r.View = r.View.Next()
	r.startViewChangeVotes[r.View] = map[ids.ReplicaId]bool{r.ID: true}
	return StartViewChange{View: r.View, Replica: r.ID}
}

// HandleStartViewChange collects votes for a view change. Once a
// quorum (joint-aware) is reached, it returns the DoViewChange to send
// to the prospective new leader.
func (r *Replica) HandleStartViewChange(svc StartViewChange) (*Outbound, error) {
	if svc.View < r.View {
		return nil, ErrStaleView
	}
	if svc.View > r.View {
		r.Status = StatusViewChange
		r.View = svc.View
	}

	votes, exists := r.startViewChangeVotes[svc.View]
	if !exists {
		votes = make(map[ids.ReplicaId]bool)
		r.startViewChangeVotes[svc.View] = votes
	}
	votes[svc.Replica] = true
	votes[r.ID] = true

	if !r.Reconfig.QuorumSatisfied(votes) {
		return nil, nil
	}

	dvc := DoViewChange{
		View:           svc.View,
		Op:             r.OpNumber,
		Commit:         r.CommitNumber,
		LogTail:        r.logTailEntries(),
		LastNormalView: r.LastNormalView,
		Reconfig:       r.Reconfig,
		Replica:        r.ID,
	}
	newLeader := r.Reconfig.LeaderElectionConfig().Leader(svc.View)
	out := unicast(newLeader, dvc)
	return &out, nil
}

// HandleStartViewChangeBatch applies HandleStartViewChange to every
// message in msgs, aggregating rejections instead of stopping at the
// first one so one malformed or stale message from a misbehaving peer
// does not block quorum collection from the rest.
func (r *Replica) HandleStartViewChangeBatch(msgs []StartViewChange) (*Outbound, error) {
	var errs error
	var result *Outbound
	for _, m := range msgs {
		out, err := r.HandleStartViewChange(m)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if out != nil {
			result = out
		}
	}
	return result, errs
}

// HandleDoViewChange is the prospective new leader's collector. A
// message whose declared commit_number exceeds its op_number, or whose
// op_number disagrees with the log tail it carries, is rejected outright
// (§4.5 Byzantine-resistance requirements, Scenario C) and never enters
// quorum accounting or tie-break selection. Once a quorum of validated
// DoViewChange messages for view V has arrived, it selects the best log
// tail by the deterministic tie-break, adopts it, and returns the
// StartView to broadcast.
func (r *Replica) HandleDoViewChange(dvc DoViewChange) (*Outbound, error) {
	if dvc.View < r.View {
		return nil, ErrStaleView
	}
	if err := validateLogTailBounds(dvc.Op, dvc.Commit, dvc.LogTail); err != nil {
		return nil, err
	}
	if r.doViewChangeDone[dvc.View] {
		return nil, nil
	}

	msgs := append(r.doViewChangeMsgs[dvc.View], dvc)
	r.doViewChangeMsgs[dvc.View] = msgs

	acked := map[ids.ReplicaId]bool{r.ID: true}
	for _, m := range msgs {
		acked[m.Replica] = true
	}
	if !dvc.Reconfig.QuorumSatisfied(acked) {
		return nil, nil
	}

	best := selectBestLogTail(msgs)
	r.doViewChangeDone[dvc.View] = true
	r.Status = StatusNormal
	r.View = dvc.View
	r.LastNormalView = dvc.View
	r.OpNumber = best.Op
	r.CommitNumber = best.Commit
	r.Reconfig = best.Reconfig
	r.Log = entriesToMap(best.LogTail)

	out := broadcast(StartView{
		View: r.View, Op: r.OpNumber, Commit: r.CommitNumber,
		LogTail: best.LogTail, Reconfig: best.Reconfig,
	})
	return &out, nil
}

// HandleDoViewChangeBatch mirrors HandleStartViewChangeBatch.
func (r *Replica) HandleDoViewChangeBatch(msgs []DoViewChange) (*Outbound, error) {
	var errs error
	var result *Outbound
	for _, m := range msgs {
		out, err := r.HandleDoViewChange(m)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if out != nil {
			result = out
		}
	}
	return result, errs
}

// selectBestLogTail implements the §4.5 step-3 deterministic
// tie-break: primary key (LastNormalView, Op) both maximal; then the
// checksum of the last entry; then replica ID. Every comparison is a
// total order over the message fields, so any two honest replicas
// collecting the same quorum select the same winner.
func selectBestLogTail(msgs []DoViewChange) DoViewChange {
	best := msgs[0]
	for _, m := range msgs[1:] {
		if doViewChangeBetter(m, best) {
			best = m
		}
	}
	return best
}

func doViewChangeBetter(a, b DoViewChange) bool {
	if a.LastNormalView != b.LastNormalView {
		return a.LastNormalView > b.LastNormalView
	}
	if a.Op != b.Op {
		return a.Op > b.Op
	}
	if ca, cb := lastEntryChecksum(a), lastEntryChecksum(b); ca != cb {
		return ca > cb
	}
	return a.Replica > b.Replica
}

func lastEntryChecksum(dvc DoViewChange) uint64 {
	if len(dvc.LogTail) == 0 {
		return 0
	}
	last := dvc.LogTail[0]
	for _, e := range dvc.LogTail[1:] {
		if e.Op > last.Op {
			last = e
		}
	}
	return last.checksum()
}

// HandleStartView is the follower-side acceptance of a new view. Per
// the Byzantine-resistance requirements (§4.5), a view must strictly
// exceed last_normal_view to be authoritative, the log tail's encoded
// size must not exceed the configured DoS bound, and the declared
// commit_number/op_number/log tail must be mutually consistent — a
// claim that commit_number exceeds op_number (Scenario C) is rejected
// rather than adopted.
func (r *Replica) HandleStartView(sv StartView) error {
	if sv.View < r.View {
		return ErrStaleView
	}
	if sv.View <= r.LastNormalView {
		return ErrStaleView
	}
	if size, bound := logTailByteSize(sv.LogTail), sv.Reconfig.LeaderElectionConfig().MaxClusterLogTailBytes; size > bound {
		return ErrOversizedLogTail
	}
	if err := validateLogTailBounds(sv.Op, sv.Commit, sv.LogTail); err != nil {
		return err
	}

	r.Status = StatusNormal
	r.View = sv.View
	r.LastNormalView = sv.View
	r.OpNumber = sv.Op
	r.CommitNumber = sv.Commit
	r.Reconfig = sv.Reconfig
	r.Log = entriesToMap(sv.LogTail)
	return nil
}

// BeginRecovery moves the replica into Recovering status with a fresh
// random nonce, returning the Recovery message to broadcast.
func (r *Replica) BeginRecovery() (Recovery, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return Recovery{}, err
	}
	var nonce [16]byte
	copy(nonce[:], u[:])

	r.Status = StatusRecovering
	r.recoveryNonce = nonce
	r.recoveryResponses = nil
	return Recovery{Nonce: nonce, Replica: r.ID}, nil
}

// HandleRecovery answers a Recovery request with the responder's
// current view and log tail.
func (r *Replica) HandleRecovery(req Recovery) RecoveryResponse {
	return RecoveryResponse{
		Nonce: req.Nonce, View: r.View, LogTail: r.logTailEntries(),
		CommitNumber: r.CommitNumber, Replica: r.ID,
	}
}

// HandleRecoveryResponse collects RecoveryResponse messages carrying
// the outstanding nonce (rejecting any that don't, per the replay
// guard) and, once a quorum has answered, adopts the newest view and
// its log tail, returning to Normal.
func (r *Replica) HandleRecoveryResponse(resp RecoveryResponse) (bool, error) {
	if r.Status != StatusRecovering {
		return false, ErrNotRecovering
	}
	if resp.Nonce != r.recoveryNonce {
		return false, ErrNonceMismatch
	}
	r.recoveryResponses = append(r.recoveryResponses, resp)

	acked := make(map[ids.ReplicaId]bool, len(r.recoveryResponses))
	for _, rr := range r.recoveryResponses {
		acked[rr.Replica] = true
	}
	if !r.Reconfig.QuorumSatisfied(acked) {
		return false, nil
	}

	newest := r.recoveryResponses[0]
	for _, rr := range r.recoveryResponses[1:] {
		if rr.View > newest.View {
			newest = rr
		}
	}

	r.View = newest.View
	r.LastNormalView = newest.View
	r.CommitNumber = newest.CommitNumber
	r.Log = entriesToMap(newest.LogTail)
	for _, e := range newest.LogTail {
		if e.Op > r.OpNumber {
			r.OpNumber = e.Op
		}
	}
	r.Status = StatusNormal
	return true, nil
}

// HandleStateTransferRequest answers a backup's request for a
// contiguous range of entries it is missing.
func (r *Replica) HandleStateTransferRequest(req StateTransferRequest) StateTransferResponse {
	var entries []Entry
	for op := req.FromOp; op <= req.ToOp; op = op.Next() {
		if e, ok := r.Log[op]; ok {
			entries = append(entries, e)
		}
	}
	return StateTransferResponse{Entries: entries, Replica: r.ID}
}

// HandleStateTransferResponse installs the returned entries into the
// local log as received, restoring VSR's own op-indexed view of the
// tail. The entries are not checked against a hash chain here: the
// segment writer assigns prev_hash itself when they are appended, and
// ledger.Recover checks the chain of a stream only when it is next
// opened.
func (r *Replica) HandleStateTransferResponse(resp StateTransferResponse) {
	for _, e := range resp.Entries {
		r.Log[e.Op] = e
		if e.Op > r.OpNumber {
			r.OpNumber = e.Op
		}
	}
}
