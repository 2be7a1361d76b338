package ledger

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// crc32cTable is the Castagnoli polynomial table mandated by the wire
// and disk formats; this is a format requirement, not a library
// choice, so it stays on the stdlib implementation (see DESIGN.md).
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// frameHeaderSize is the length and crc32c fields preceding prev_hash.
const frameHeaderSize = 4 + 4

// metaLenSize is the length prefix placed before the metadata section
// so a reader can split metadata from payload without re-parsing CBOR.
const metaLenSize = 4

// EncodeFrame serializes entry to its on-disk frame:
// [length:u32 | crc32c:u32 | prev_hash:32B | meta_len:u32 | metadata | payload],
// little-endian throughout. length covers everything after itself;
// crc32c covers the frame excluding the length word.
func EncodeFrame(entry LogEntry) ([]byte, error) {
	meta, err := entry.MetaBytes()
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, kcryptoHashSize+metaLenSize+len(meta)+len(entry.Payload))
	body = append(body, entry.PrevHash[:]...)
	body = appendUint32(body, uint32(len(meta)))
	body = append(body, meta...)
	body = append(body, entry.Payload...)

	crc := crc32.Checksum(body, crc32cTable)

	frame := make([]byte, 0, frameHeaderSize+len(body))
	frame = appendUint32(frame, uint32(len(body)+4)) // +4 for the crc32c field itself
	frame = appendUint32(frame, crc)
	frame = append(frame, body...)
	return frame, nil
}

const kcryptoHashSize = 32

// DecodedFrame is a parsed on-disk frame prior to full LogEntry
// reconstruction (the caller supplies op/view/tenant/stream/offset
// context separately since those live in metadata, which stays raw
// CBOR in Meta until entryFromDecodedFrame decodes it).
type DecodedFrame struct {
	PrevHash [32]byte
	Meta     []byte
	Payload  []byte
	Checksum uint32
}

// DecodeFrame parses a single frame starting at the beginning of b,
// returning the decoded frame and the number of bytes consumed. It
// verifies the length field is internally consistent and the crc32c
// matches, but does not verify hash-chain continuity — that is the
// recovery scan's job, since it needs the previous entry for context.
func DecodeFrame(b []byte) (DecodedFrame, int, error) {
	if len(b) < 4 {
		return DecodedFrame{}, 0, ErrShortFrame
	}
	length := binary.LittleEndian.Uint32(b[0:4])
	total := 4 + int(length)
	if len(b) < total {
		return DecodedFrame{}, 0, ErrShortFrame
	}

	rest := b[4:total]
	if len(rest) < 4+kcryptoHashSize+metaLenSize {
		return DecodedFrame{}, 0, ErrCorruptFrame
	}
	crc := binary.LittleEndian.Uint32(rest[0:4])
	body := rest[4:]

	computed := crc32.Checksum(body, crc32cTable)
	if computed != crc {
		return DecodedFrame{}, 0, ErrChecksumMismatch
	}

	var prevHash [32]byte
	copy(prevHash[:], body[0:kcryptoHashSize])

	metaLen := binary.LittleEndian.Uint32(body[kcryptoHashSize : kcryptoHashSize+metaLenSize])
	metaStart := kcryptoHashSize + metaLenSize
	metaEnd := metaStart + int(metaLen)
	if len(body) < metaEnd {
		return DecodedFrame{}, 0, ErrCorruptFrame
	}

	meta := body[metaStart:metaEnd]
	payload := body[metaEnd:]

	return DecodedFrame{
		PrevHash: prevHash,
		Meta:     meta,
		Payload:  payload,
		Checksum: crc,
	}, total, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// Frame-level errors, surfaced as ids.Error with KindCorruption so the
// recovery scan and runtime can distinguish them from application
// errors.
var (
	ErrShortFrame       = ids.New(ids.KindCorruption, "frame shorter than its declared length")
	ErrCorruptFrame     = ids.New(ids.KindCorruption, "frame structurally inconsistent")
	ErrChecksumMismatch = ids.New(ids.KindCorruption, "frame crc32c mismatch")
)
