package ledger

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/ledger/tombstone"
)

// defaultErasureCapacity bounds the expected number of erased offsets
// a single stream's filter sizes for before the false-positive rate
// climbs; a stream that erases more than this still works correctly,
// just with a higher (still purely negative-safe) false-positive rate.
const defaultErasureCapacity = 1 << 16

// erasureBitsPerElement mirrors the teacher's bloom package sizing
// convention (bloom/sizing.go): 8 bits per element per filter gives a
// workable false-positive rate at k=4.
const erasureBitsPerElement = 8
const erasureK = 4

// ErasureFilter is the fast, purely negative "has this offset
// definitely not been erased" check described in DESIGN.md, wrapping
// the ledger/tombstone bit-level package with a per-stream region
// buffer and offset-to-key hashing so runtime callers never touch the
// raw byte region directly.
type ErasureFilter struct {
	mu      sync.Mutex
	regions map[ids.StreamId][]byte
}

// NewErasureFilter returns an empty, in-memory erasure filter. The
// filter is a performance accelerant only — the authoritative record
// of an erasure is always the ErasureEffect's log entry; losing this
// filter (e.g. on restart) only costs a few unnecessary log lookups,
// never correctness, so it is rebuilt lazily rather than persisted.
func NewErasureFilter() *ErasureFilter {
	return &ErasureFilter{regions: make(map[ids.StreamId][]byte)}
}

func (f *ErasureFilter) regionFor(stream ids.StreamId) []byte {
	region, ok := f.regions[stream]
	if !ok {
		region = make([]byte, tombstone.RegionBytes(defaultErasureCapacity*erasureBitsPerElement))
		if err := tombstone.Init(region, defaultErasureCapacity, erasureBitsPerElement, erasureK); err != nil {
			panic("ledger: erasure filter region init: " + err.Error())
		}
		f.regions[stream] = region
	}
	return region
}

func erasureKey(stream ids.StreamId, offset ids.Offset) []byte {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", stream.Key(), uint64(offset))))
	return h[:]
}

// MarkErased records that (stream, offset) has been tombstoned.
func (f *ErasureFilter) MarkErased(stream ids.StreamId, offset ids.Offset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	region := f.regionFor(stream)
	for i := uint8(0); i < tombstone.Filters; i++ {
		if err := tombstone.MarkErased(region, i, erasureKey(stream, offset)); err != nil {
			return err
		}
	}
	return nil
}

// MaybeErased reports whether (stream, offset) might have been
// erased. false is a definite answer; true requires a log lookup to
// confirm, since a Bloom filter can false-positive but never
// false-negative.
func (f *ErasureFilter) MaybeErased(stream ids.StreamId, offset ids.Offset) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	region := f.regionFor(stream)
	for i := uint8(0); i < tombstone.Filters; i++ {
		maybe, err := tombstone.MaybeErased(region, i, erasureKey(stream, offset))
		if err != nil {
			return false, err
		}
		if !maybe {
			return false, nil
		}
	}
	return true, nil
}
