package vsr

import (
	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
	"github.com/kimberlitedb/kimberlite-sub005/kernel"
)

// Entry is one position in a replica's log tail: the kernel command
// proposed for that op, tagged with the view it was proposed in. This
// is distinct from ledger.LogEntry — a vsr.Entry may still be
// uncommitted and is never itself written to disk; once committed, the
// runtime turns it into one or more ledger.LogEntry appends via the
// kernel effects Apply produces.
type Entry struct {
	View    ids.ViewNumber
	Op      ids.OpNumber
	Command kernel.Command
}

// checksum is the deterministic tie-break input for view-change log
// tail selection (§4.5 step 3): a canonical-encoding hash of the
// entry's content. A canonical encode failure means Command carries a
// type cbor cannot represent, which is a programming error, not a
// runtime condition to recover from.
func (e Entry) checksum() uint64 {
	b, err := kcrypto.CanonicalBytes(e)
	assert.Invariant(err == nil, "vsr: entry at op %d failed canonical encoding: %v", e.Op, err)
	return kcrypto.FastHash(b)
}

func (e Entry) encodedSize() int64 {
	b, err := kcrypto.CanonicalBytes(e)
	assert.Invariant(err == nil, "vsr: entry at op %d failed canonical encoding: %v", e.Op, err)
	return int64(len(b))
}

func entriesToMap(tail []Entry) map[ids.OpNumber]Entry {
	m := make(map[ids.OpNumber]Entry, len(tail))
	for _, e := range tail {
		m[e.Op] = e
	}
	return m
}

func logTailByteSize(tail []Entry) int64 {
	var total int64
	for _, e := range tail {
		total += e.encodedSize()
	}
	return total
}

// maxOp returns the highest op number present in tail, or the zero
// value if tail is empty.
func maxOp(tail []Entry) ids.OpNumber {
	var max ids.OpNumber
	for _, e := range tail {
		if e.Op > max {
			max = e.Op
		}
	}
	return max
}

// validateLogTailBounds rejects a DoViewChange/StartView whose declared
// op/commit numbers are internally inconsistent or disagree with the
// log tail carried alongside them — the §4.5 Byzantine-resistance
// requirements that a malicious commit_number claim (Scenario C) or a
// log tail that disagrees with its own declared length must never be
// adopted.
func validateLogTailBounds(op, commit ids.OpNumber, tail []Entry) error {
	if commit > op {
		return ErrCommitExceedsOp
	}
	if got := maxOp(tail); got != op {
		return ErrLogTailMismatch
	}
	return nil
}
