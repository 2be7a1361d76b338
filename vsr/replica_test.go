package vsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
)

func testConfig(t *testing.T, n int) Config {
	t.Helper()
	replicas := make([]ids.ReplicaId, n)
	for i := range replicas {
		replicas[i] = ids.ReplicaId(i)
	}
	cfg, err := NewConfig(replicas)
	require.NoError(t, err)
	return cfg
}

func threeReplicas(t *testing.T) (*Replica, *Replica, *Replica) {
	t.Helper()
	cfg := testConfig(t, 3)
	log := logging.Nop()
	return NewReplica(0, cfg, log), NewReplica(1, cfg, log), NewReplica(2, cfg, log)
}

func TestNormalOperationCommitsOnQuorum(t *testing.T) {
	leader, f1, f2 := threeReplicas(t)
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	stream, err := ids.NewStreamId(tenant, 1)
	require.NoError(t, err)
	cmd := kernel.Command{Kind: kernel.CommandCreateStream, Tenant: tenant, Stream: stream}

	out, err := leader.Propose(cmd)
	require.NoError(t, err)
	prepare := out.Message.(Prepare)

	ok1, err := f1.HandlePrepare(prepare)
	require.NoError(t, err)
	ok2, err := f2.HandlePrepare(prepare)
	require.NoError(t, err)

	_, committed, err := leader.HandlePrepareOk(ok1.Message.(PrepareOk))
	require.NoError(t, err)
	require.Equal(t, []ids.OpNumber{1}, committed, "expected op 1 committed once leader + one follower ack (quorum 2 of 3)")

	_, committed, err = leader.HandlePrepareOk(ok2.Message.(PrepareOk))
	require.NoError(t, err)
	assert.Empty(t, committed, "expected no additional commit once op 1 is already committed")
	assert.Equal(t, ids.OpNumber(1), leader.CommitNumber)
}

func TestNonLeaderCannotPropose(t *testing.T) {
	_, f1, _ := threeReplicas(t)
	_, err := f1.Propose(kernel.Command{Kind: kernel.CommandRotateKey})
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestPrepareRejectsOpNumberGap(t *testing.T) {
	leader, f1, _ := threeReplicas(t)
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)

	out, err := leader.Propose(kernel.Command{Kind: kernel.CommandRotateKey, Tenant: tenant})
	require.NoError(t, err)
	prepare := out.Message.(Prepare)
	prepare.Entry.Op = 5 // simulate a gap

	_, err = f1.HandlePrepare(prepare)
	assert.ErrorIs(t, err, ErrUnexpectedOp)
}

func TestViewChangeSelectsDeterministicBestTail(t *testing.T) {
	cfg := testConfig(t, 3)

	// Two DoViewChange messages at the same (LastNormalView, Op): the
	// tie-break must fall to checksum, then replica ID, and must pick
	// the same winner regardless of arrival order.
	dvcA := DoViewChange{View: 1, Op: 5, Commit: 4, LastNormalView: 0, Reconfig: StableState(cfg), Replica: 0}
	dvcB := DoViewChange{View: 1, Op: 5, Commit: 4, LastNormalView: 0, Reconfig: StableState(cfg), Replica: 1}
	dvcC := DoViewChange{View: 1, Op: 5, Commit: 4, LastNormalView: 0, Reconfig: StableState(cfg), Replica: 2}

	winner1 := selectBestLogTail([]DoViewChange{dvcA, dvcB, dvcC})
	winner2 := selectBestLogTail([]DoViewChange{dvcC, dvcB, dvcA})

	assert.Equal(t, winner1.Replica, winner2.Replica, "expected order-independent deterministic winner")
}

func TestHandleStartViewRejectsStaleLastNormalView(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(0, cfg, logging.Nop())
	r.LastNormalView = 5
	r.View = 5

	sv := StartView{View: 5, Op: 1, Commit: 0, Reconfig: StableState(cfg)}
	assert.ErrorIs(t, r.HandleStartView(sv), ErrStaleView)
}

func TestHandleDoViewChangeRejectsInflatedCommit(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(1, cfg, logging.Nop()) // leader(view 1) = 1 mod 3 = 1

	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	entry := Entry{View: 0, Op: 5, Command: kernel.Command{Kind: kernel.CommandRotateKey, Tenant: tenant}}

	// A Byzantine DoViewChange claiming commit_number = op_number + 500
	// (Scenario C). The log tail otherwise matches Op exactly, isolating
	// the rejection to the inflated commit claim.
	dvc := DoViewChange{
		View: 1, Op: 5, Commit: 505, LogTail: []Entry{entry},
		LastNormalView: 0, Reconfig: StableState(cfg), Replica: 0,
	}

	_, err = r.HandleDoViewChange(dvc)
	assert.ErrorIs(t, err, ErrCommitExceedsOp)
	assert.Equal(t, ids.OpNumber(0), r.CommitNumber,
		"a rejected DoViewChange must never advance commit_number past op_number")
	assert.Equal(t, StatusNormal, r.Status, "a rejected DoViewChange must leave the replica's status unchanged")
}

func TestHandleDoViewChangeRejectsLogTailMismatch(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(1, cfg, logging.Nop())

	// Declares Op=5 but the accompanying log tail's highest entry is 3.
	dvc := DoViewChange{
		View: 1, Op: 5, Commit: 3, LogTail: []Entry{{View: 0, Op: 3}},
		LastNormalView: 0, Reconfig: StableState(cfg), Replica: 0,
	}

	_, err := r.HandleDoViewChange(dvc)
	assert.ErrorIs(t, err, ErrLogTailMismatch)
}

func TestHandleStartViewRejectsInflatedCommit(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(0, cfg, logging.Nop())

	// Same Scenario C shape as TestHandleDoViewChangeRejectsInflatedCommit,
	// applied to the follower-side StartView acceptance path.
	sv := StartView{View: 1, Op: 5, Commit: 505, Reconfig: StableState(cfg)}

	err := r.HandleStartView(sv)
	assert.ErrorIs(t, err, ErrCommitExceedsOp)
	assert.Equal(t, ids.OpNumber(0), r.CommitNumber)
	assert.Equal(t, ids.ViewNumber(0), r.View, "a rejected StartView must not advance the replica's view")
}

func TestHandleStartViewRejectsOversizedLogTail(t *testing.T) {
	cfg := testConfig(t, 3)
	cfg.MaxClusterLogTailBytes = 1 // force any non-empty tail to exceed the bound
	r := NewReplica(0, cfg, logging.Nop())

	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)
	entry := Entry{View: 1, Op: 1, Command: kernel.Command{Kind: kernel.CommandRotateKey, Tenant: tenant}}
	sv := StartView{View: 1, Op: 1, Commit: 0, LogTail: []Entry{entry}, Reconfig: StableState(cfg)}

	assert.ErrorIs(t, r.HandleStartView(sv), ErrOversizedLogTail)
}

func TestRecoveryRejectsMismatchedNonce(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(0, cfg, logging.Nop())

	_, err := r.BeginRecovery()
	require.NoError(t, err)

	resp := RecoveryResponse{Nonce: [16]byte{9, 9, 9}, View: 0, Replica: 1}
	_, err = r.HandleRecoveryResponse(resp)
	assert.ErrorIs(t, err, ErrNonceMismatch)
}

func TestRecoveryAdoptsNewestQuorumView(t *testing.T) {
	cfg := testConfig(t, 3)
	r := NewReplica(0, cfg, logging.Nop())

	req, err := r.BeginRecovery()
	require.NoError(t, err)

	_, err = r.HandleRecoveryResponse(RecoveryResponse{Nonce: req.Nonce, View: 3, Replica: 1})
	require.NoError(t, err)
	done, err := r.HandleRecoveryResponse(RecoveryResponse{Nonce: req.Nonce, View: 7, Replica: 2})
	require.NoError(t, err)
	assert.True(t, done, "expected quorum reached on second response (two peers)")
	assert.Equal(t, ids.ViewNumber(7), r.View)
	assert.Equal(t, StatusNormal, r.Status)
}

func TestJointReconfigurationRequiresQuorumInBothConfigs(t *testing.T) {
	leader, f1, f2 := threeReplicas(t)
	tenant, err := ids.NewTenantId(1)
	require.NoError(t, err)

	newReplicas := []ids.ReplicaId{0, 1, 2, 3, 4}
	out, err := leader.Propose(kernel.Command{
		Kind: kernel.CommandReconfigure, Tenant: tenant, ReconfigureNewReplicas: newReplicas,
	})
	require.NoError(t, err)
	require.True(t, leader.Reconfig.Joint, "expected leader to enter joint reconfiguration on propose")

	prepare := out.Message.(Prepare)
	ok1, err := f1.HandlePrepare(prepare)
	require.NoError(t, err)
	assert.True(t, f1.Reconfig.Joint, "expected follower to enter joint reconfiguration on prepare")

	// Only two of three old-config votes (self + f1): old config quorum
	// (2 of 3) is met, but new config (5 replicas, quorum 3) is not, so
	// no commit should occur yet.
	_, committed, err := leader.HandlePrepareOk(ok1.Message.(PrepareOk))
	require.NoError(t, err)
	assert.Empty(t, committed, "expected no commit until new config also reaches quorum")

	ok2, err := f2.HandlePrepare(prepare)
	require.NoError(t, err)
	_, committed, err = leader.HandlePrepareOk(ok2.Message.(PrepareOk))
	require.NoError(t, err)
	// All three existing replicas have now voted: old config (quorum 2
	// of 3) and new config (quorum 3 of 5) are both satisfied.
	assert.Len(t, committed, 1, "expected joint op to commit once both configs reach quorum")
	assert.False(t, leader.Reconfig.Joint, "expected leader to leave joint state once the reconfigure op committed")
}
