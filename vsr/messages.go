package vsr

import "github.com/kimberlitedb/kimberlite-sub005/ids"

// Prepare carries a tentatively-ordered entry from the leader to every
// other replica in the active configuration(s).
type Prepare struct {
	View  ids.ViewNumber
	Entry Entry
}

// PrepareOk is a follower's acknowledgment of a Prepare, sent to the leader.
type PrepareOk struct {
	View    ids.ViewNumber
	Op      ids.OpNumber
	Replica ids.ReplicaId
}

// Commit announces the leader's new commit_number to every replica.
type Commit struct {
	View         ids.ViewNumber
	CommitNumber ids.OpNumber
}

// StartViewChange is broadcast by a replica that suspects the leader.
type StartViewChange struct {
	View    ids.ViewNumber
	Replica ids.ReplicaId
}

// DoViewChange is sent by a replica to the prospective new leader once
// it has collected a quorum of StartViewChange for view V.
type DoViewChange struct {
	View           ids.ViewNumber
	Op             ids.OpNumber
	Commit         ids.OpNumber
	LogTail        []Entry
	LastNormalView ids.ViewNumber
	Reconfig       ReconfigState
	Replica        ids.ReplicaId
}

// StartView is broadcast by the new leader once it has selected the
// best log tail among a quorum of DoViewChange messages.
type StartView struct {
	View     ids.ViewNumber
	Op       ids.OpNumber
	Commit   ids.OpNumber
	LogTail  []Entry
	Reconfig ReconfigState
}

// Recovery is broadcast by a replica restarting after a crash, carrying
// a fresh nonce that RecoveryResponse must echo (replay guard).
type Recovery struct {
	Nonce   [16]byte
	Replica ids.ReplicaId
}

// RecoveryResponse answers a Recovery request, carrying the responder's
// current view and log tail.
type RecoveryResponse struct {
	Nonce        [16]byte
	View         ids.ViewNumber
	LogTail      []Entry
	CommitNumber ids.OpNumber
	Replica      ids.ReplicaId
}

// StateTransferRequest asks the leader for a contiguous range of
// entries a backup is missing (detected an op number gap).
type StateTransferRequest struct {
	FromOp  ids.OpNumber
	ToOp    ids.OpNumber
	Replica ids.ReplicaId
}

// StateTransferResponse carries the requested entries.
type StateTransferResponse struct {
	Entries []Entry
	Replica ids.ReplicaId
}

// Outbound is a message the runtime must deliver. When Broadcast is
// true, To is meaningless and the message goes to every other replica
// in the active configuration(s).
type Outbound struct {
	To        ids.ReplicaId
	Broadcast bool
	Message   interface{}
}

func broadcast(msg interface{}) Outbound { return Outbound{Broadcast: true, Message: msg} }

func unicast(to ids.ReplicaId, msg interface{}) Outbound { return Outbound{To: to, Message: msg} }
