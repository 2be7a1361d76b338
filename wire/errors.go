package wire

import (
	"errors"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

var (
	ErrBadMagic              = errors.New("wire: frame magic mismatch")
	ErrVersionMismatch       = errors.New("wire: protocol version mismatch")
	ErrFrameChecksumMismatch = errors.New("wire: frame crc32c mismatch")
	ErrTruncated             = errors.New("wire: payload truncated")
	ErrUnknownOp             = errors.New("wire: unknown operation code")
)

// Code is the closed set of wire error codes a server response carries,
// mapped from ids.ErrorKind (§7: "everything else surfaces through a
// closed error enum up to the runtime, which maps it to a wire error
// code").
type Code uint16

const (
	CodeOK Code = iota
	CodeProtocolViolation
	CodeTransientIO
	CodeHardIO
	CodeApplication
	CodeCorruption
	CodeAuthFailure
	CodeStreamNotFound
	CodeStreamExists
	CodeOffsetMismatch
	CodeQuotaExceeded
	CodeClusterUnavailable
	CodeNotLeader
)

// CodeFromError maps a closed ids.Error to its wire code. Non-ids
// errors map to CodeApplication, the safest default for an unexpected
// internal error surfaced to a client.
func CodeFromError(err error) Code {
	var kerr *ids.Error
	if !errors.As(err, &kerr) {
		return CodeApplication
	}
	switch {
	case errors.Is(err, ids.ErrAuthFailure):
		return CodeAuthFailure
	case errors.Is(err, ids.ErrStreamNotFound):
		return CodeStreamNotFound
	case errors.Is(err, ids.ErrStreamExists):
		return CodeStreamExists
	case errors.Is(err, ids.ErrOffsetMismatch):
		return CodeOffsetMismatch
	case errors.Is(err, ids.ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ids.ErrClusterUnavail):
		return CodeClusterUnavailable
	}
	switch kerr.Kind {
	case ids.KindProtocolViolation:
		return CodeProtocolViolation
	case ids.KindTransientIO:
		return CodeTransientIO
	case ids.KindHardIO:
		return CodeHardIO
	case ids.KindCorruption:
		return CodeCorruption
	default:
		return CodeApplication
	}
}

// Retryable reports whether a client should retry a request that
// failed with this code, mirroring ids.ErrorKind.Retryable for the
// codes that don't map cleanly back to a single kind.
func (c Code) Retryable() bool {
	switch c {
	case CodeTransientIO, CodeOffsetMismatch, CodeClusterUnavailable, CodeNotLeader:
		return true
	default:
		return false
	}
}
