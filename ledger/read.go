package ledger

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// ReadRange scans stream's segments under dataDir in ascending order
// and returns every entry with Offset in [from, from+maxCount), stopping
// once maxCount entries are collected or the tail is reached. Unlike
// Recover, a checksum or chain failure here is reported to the caller
// rather than silently truncated — serving a read is not the place to
// make a recovery-time repair decision.
//
// erasure is consulted for every candidate entry before it is returned:
// a "definitely not erased" answer passes the entry through unchanged,
// and a "maybe erased" answer redacts the payload rather than surface
// it, since the underlying record is never deleted from disk but §4.4
// requires a tombstoned record to never again be read back in full. A
// nil erasure filter disables redaction (no erasures are possible to
// check against).
func ReadRange(dataDir string, stream ids.StreamId, from ids.Offset, maxCount int, erasure *ErasureFilter) ([]LogEntry, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	dir := filepath.Join(dataDir, filepath.FromSlash(streamPrefix(stream)))
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []string
	for _, e := range dirEntries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".kmseg" {
			continue
		}
		segments = append(segments, e.Name())
	}
	sort.Strings(segments)

	var out []LogEntry
	prevHash := GenesisPrevHash()

	for _, name := range segments {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		offset := 0
		for offset < len(data) {
			df, consumed, err := DecodeFrame(data[offset:])
			if err != nil {
				if err == ErrShortFrame {
					break
				}
				return nil, ids.Wrap(ids.KindCorruption, "segment frame decode failed", err).
					WithContext("path", path).WithContext("offset", offset)
			}
			if df.PrevHash != prevHash {
				return nil, ids.ErrLogCorrupt.
					WithContext("path", path).WithContext("offset", offset).
					WithContext("reason", "hash chain discontinuity")
			}

			entry, err := entryFromDecodedFrame(df)
			if err != nil {
				return nil, err
			}
			chainHash, err := entry.ChainHash()
			if err != nil {
				return nil, err
			}
			prevHash = chainHash
			offset += consumed

			if entry.Offset >= from {
				if erasure != nil && entry.EventType != "erasure" && entry.Payload != nil {
					maybe, err := erasure.MaybeErased(stream, entry.Offset)
					if err != nil {
						return nil, err
					}
					if maybe {
						entry.Payload = nil
					}
				}
				out = append(out, entry)
				if len(out) >= maxCount {
					return out, nil
				}
			}
		}
	}

	return out, nil
}
