// Package wire implements the §6 external interface: the framed
// binary envelope for client-to-server traffic (inter-replica traffic
// is gob-encoded by runtime/nettransport.go), its payload encoding, and the AuthRequest/AuthResponse
// handshake. The framing is hand-rolled over encoding/binary rather
// than a library codec (CBOR, protobuf) because the spec mandates an
// exact byte layout so any target-language implementation produces
// interchangeable bytes — no ecosystem serializer in the retrieved
// pack claims that property, so this is the one place the module
// deliberately does not reach for fxamacker/cbor (see DESIGN.md).
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// Magic identifies a Kimberlite wire frame: the ASCII bytes "KMB" plus
// a trailing 0x00 version-family marker, packed big-endian as the spec
// states it (0x4B4D4200).
const Magic uint32 = 0x4B4D4200

// Version is the current wire protocol version. A frame whose version
// does not match is rejected with ErrVersionMismatch, never silently
// upgraded or downgraded.
const Version uint16 = 1

// MaxPayloadLength is the hard cap on payload_length; larger frames are
// rejected before the payload is even read off the wire.
const MaxPayloadLength = 16 << 20

// frameHeaderBytes is the fixed-size header preceding payload:
// magic(4) + version(2) + reserved(2) + payload_length(4) + crc32c(4).
const frameHeaderBytes = 4 + 2 + 2 + 4 + 4

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// EncodeFrame serializes payload into the on-wire envelope:
// [magic:u32 | version:u16 | reserved:u16 | payload_length:u32 | crc32c:u32 | payload],
// little-endian throughout except magic, which is written big-endian
// to match its documented hex constant 0x4B4D4200 byte-for-byte.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ids.ErrOversizedPayload.WithContext("length", len(payload))
	}

	out := make([]byte, frameHeaderBytes+len(payload))
	binary.BigEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint16(out[4:6], Version)
	binary.LittleEndian.PutUint16(out[6:8], 0) // reserved
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[12:16], crc32.Checksum(payload, crc32cTable))
	copy(out[frameHeaderBytes:], payload)
	return out, nil
}

// WriteFrame encodes payload and writes it to w in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one frame from r, validating magic, version,
// payload_length bound, and crc32c before returning the payload.
// Version mismatches and oversized frames are rejected with a
// dedicated error, never silently accepted.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderBytes]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	magic := binary.BigEndian.Uint32(header[0:4])
	if magic != Magic {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(header[4:6])
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, Version)
	}
	length := binary.LittleEndian.Uint32(header[8:12])
	if length > MaxPayloadLength {
		return nil, ids.ErrOversizedPayload.WithContext("length", length)
	}
	wantCRC := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if crc32.Checksum(payload, crc32cTable) != wantCRC {
		return nil, ErrFrameChecksumMismatch
	}
	return payload, nil
}
