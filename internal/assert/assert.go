// Package assert implements the abort-on-violation checks the spec
// requires for safety-critical invariants: non-zero keys, offset
// monotonicity, tenant isolation, quorum overlap. These are never
// returned as errors — the hallmark of an invariant violation is that
// local state is already incoherent, so the only sound response is to
// stop before the corruption propagates.
package assert

import (
	"fmt"
	"os"
)

// Invariant aborts the process if cond is false. msg and args are
// formatted with fmt.Sprintf and must include enough context (offsets,
// op numbers, view numbers, never key material) to diagnose post-mortem.
func Invariant(cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	fail(msg, args...)
}

// NotZero aborts if b consists entirely of zero bytes. Used to guard
// against all-zero keys, nonces, signatures, and hash outputs, which
// the spec treats as corrupted or uninitialized material rather than
// a legitimate value.
func NotZero(b []byte, what string) {
	if len(b) == 0 {
		fail("assert: %s is empty", what)
	}
	for _, v := range b {
		if v != 0 {
			return
		}
	}
	fail("assert: %s is all-zero", what)
}

func fail(msg string, args ...interface{}) {
	formatted := fmt.Sprintf(msg, args...)
	fmt.Fprintf(os.Stderr, "FATAL invariant violation: %s\n", formatted)
	panic("assert: " + formatted)
}
