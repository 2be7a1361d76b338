package ledger

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
)

// LogEntry is the unit of the append-only log, immutable once created.
// prev_hash is the compliance hash of the preceding entry's canonical
// bytes; checksum is the CRC32C of its on-disk frame, excluding the
// length prefix (§4.1/§4.3).
type LogEntry struct {
	OpNumber  ids.OpNumber
	View      ids.ViewNumber
	Tenant    ids.TenantId
	Stream    ids.StreamId
	Offset    ids.Offset
	Timestamp int64
	EventType string
	Payload   []byte
	PrevHash  [32]byte
	Checksum  uint32
}

// entryMeta is the canonical, CBOR-tagged projection of LogEntry used
// both as the frame's metadata section and as the semantic content
// hashed into the next entry's prev_hash. It intentionally excludes
// PrevHash, Checksum, and Payload: PrevHash/Checksum are framing
// concerns, and Payload is appended separately so large payloads never
// need to be copied into a CBOR buffer.
type entryMeta struct {
	OpNumber   uint64 `cbor:"1,keyasint"`
	View       uint64 `cbor:"2,keyasint"`
	Tenant     uint64 `cbor:"3,keyasint"`
	StreamTnt  uint64 `cbor:"4,keyasint"`
	StreamN    uint64 `cbor:"5,keyasint"`
	Offset     uint64 `cbor:"6,keyasint"`
	Timestamp  int64  `cbor:"7,keyasint"`
	EventType  string `cbor:"8,keyasint"`
}

func (e LogEntry) meta() entryMeta {
	return entryMeta{
		OpNumber:  uint64(e.OpNumber),
		View:      uint64(e.View),
		Tenant:    uint64(e.Tenant),
		StreamTnt: uint64(e.Stream.Tenant),
		StreamN:   e.Stream.N,
		Offset:    uint64(e.Offset),
		Timestamp: e.Timestamp,
		EventType: e.EventType,
	}
}

// MetaBytes returns the frame's metadata section: the canonical CBOR
// encoding of every field except PrevHash, Checksum, and Payload.
func (e LogEntry) MetaBytes() ([]byte, error) {
	return kcrypto.CanonicalBytes(e.meta())
}

// CanonicalBytes returns canonical_bytes(e): MetaBytes() || Payload,
// the exact input hashed to produce the following entry's PrevHash.
func (e LogEntry) CanonicalBytes() ([]byte, error) {
	meta, err := e.MetaBytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(meta)+len(e.Payload))
	out = append(out, meta...)
	out = append(out, e.Payload...)
	return out, nil
}

// ChainHash returns the compliance hash that the following entry must
// carry as PrevHash.
func (e LogEntry) ChainHash() ([32]byte, error) {
	b, err := e.CanonicalBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return kcrypto.ComplianceHash(b), nil
}

// GenesisPrevHash is the PrevHash value for the first entry in a
// stream, the compliance hash of the empty byte string.
func GenesisPrevHash() [32]byte {
	return kcrypto.ComplianceHash(nil)
}

// entryFromDecodedFrame reconstructs a LogEntry from a DecodedFrame's
// meta/payload/prev_hash/checksum sections.
func entryFromDecodedFrame(df DecodedFrame) (LogEntry, error) {
	var m entryMeta
	if err := cbor.Unmarshal(df.Meta, &m); err != nil {
		return LogEntry{}, err
	}
	tenant, err := ids.NewTenantId(m.Tenant)
	if err != nil {
		return LogEntry{}, err
	}
	streamTenant, err := ids.NewTenantId(m.StreamTnt)
	if err != nil {
		return LogEntry{}, err
	}
	stream, err := ids.NewStreamId(streamTenant, m.StreamN)
	if err != nil {
		return LogEntry{}, err
	}
	return LogEntry{
		OpNumber:  ids.OpNumber(m.OpNumber),
		View:      ids.ViewNumber(m.View),
		Tenant:    tenant,
		Stream:    stream,
		Offset:    ids.Offset(m.Offset),
		Timestamp: m.Timestamp,
		EventType: m.EventType,
		Payload:   append([]byte(nil), df.Payload...),
		PrevHash:  df.PrevHash,
		Checksum:  df.Checksum,
	}, nil
}
