package vsr

import "errors"

var (
	ErrNotLeader        = errors.New("vsr: replica is not the leader for its current view")
	ErrWrongView        = errors.New("vsr: message view does not match replica view")
	ErrNotNormal        = errors.New("vsr: replica is not in Normal status")
	ErrNotRecovering    = errors.New("vsr: replica is not in Recovering status")
	ErrUnexpectedOp     = errors.New("vsr: op number gap, state transfer required")
	ErrOversizedLogTail = errors.New("vsr: log tail exceeds the configured size bound")
	ErrStaleView        = errors.New("vsr: view is not authoritative over last_normal_view")
	ErrDuplicateReplica = errors.New("vsr: duplicate replica id in configuration")
	ErrEvenClusterSize  = errors.New("vsr: cluster size must be odd")
	ErrAlreadyJoint     = errors.New("vsr: cluster is already in a joint reconfiguration")
	ErrNonceMismatch    = errors.New("vsr: recovery response nonce does not match the outstanding request")
	ErrUnknownOp        = errors.New("vsr: op number not present in local log")
	ErrCommitExceedsOp  = errors.New("vsr: declared commit_number exceeds op_number")
	ErrLogTailMismatch  = errors.New("vsr: declared op number disagrees with the accompanying log tail")
)
