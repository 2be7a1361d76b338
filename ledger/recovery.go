package ledger

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/merkle"
)

// Recover scans every segment for stream under dataDir in ascending
// order, verifying crc32c and hash-chain continuity. A trailing
// partial frame (a torn write) is truncated; any other verification
// failure is fatal and returned as ids.ErrLogCorrupt.
func Recover(dataDir string, stream ids.StreamId, log logging.Logger) (*RecoveredTail, error) {
	dir := filepath.Join(dataDir, filepath.FromSlash(streamPrefix(stream)))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &RecoveredTail{TailHash: GenesisPrevHash()}, nil
		}
		return nil, err
	}

	var segments []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".kmseg" {
			continue
		}
		segments = append(segments, e.Name())
	}
	sort.Strings(segments)

	tail := &RecoveredTail{TailHash: GenesisPrevHash(), Tree: merkle.New()}
	if len(segments) == 0 {
		return tail, nil
	}

	for i, name := range segments {
		path := filepath.Join(dir, name)
		isLast := i == len(segments)-1
		validSize, lastEntry, err := scanSegment(path, tail)
		if err != nil {
			return nil, err
		}
		if validSize < fileSize(path) {
			if !isLast {
				return nil, ids.ErrLogCorrupt.WithContext("segment", name).WithContext("reason", "mid-segment corruption in non-tail segment")
			}
			if err := os.Truncate(path, validSize); err != nil {
				return nil, err
			}
			if log != nil {
				log.Warnw("truncated torn write on recovery", "segment", name, "valid_size", validSize)
			}
		}
		if lastEntry != nil {
			tail.NextOffset = lastEntry.Offset.Next()
			tail.LastOpNumber = lastEntry.OpNumber
			chainHash, err := lastEntry.ChainHash()
			if err != nil {
				return nil, err
			}
			tail.TailHash = chainHash
		}
		if isLast {
			tail.SegmentPath = path
			tail.SegmentSize = validSize
			if first, ok := parseSegmentFirstOp(name); ok {
				tail.SegmentFirstOp = first
			}
		}
	}

	return tail, nil
}

// scanSegment verifies every frame in path against the running chain
// tail, returning the byte offset through which the segment is valid
// and the last successfully decoded entry (if any). A checksum
// mismatch or broken hash chain on any complete frame, the final one
// included, is fatal; only a frame that is itself truncated (insufficient bytes to
// even contain its declared length) is treated as a torn write.
func scanSegment(path string, tail *RecoveredTail) (int64, *LogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}

	var validSize int64
	var last *LogEntry
	prevHash := tail.TailHash

	offset := 0
	for offset < len(data) {
		df, consumed, err := DecodeFrame(data[offset:])
		if err != nil {
			if err == ErrShortFrame {
				// Not enough bytes remain to even contain the declared
				// frame length: a torn write at the tail.
				break
			}
			return 0, nil, ids.Wrap(ids.ErrLogCorrupt.Kind, ids.ErrLogCorrupt.Message, err).
				WithContext("path", path).WithContext("offset", offset).
				WithContext("reason", "segment frame decode failed")
		}

		if df.PrevHash != prevHash {
			return 0, nil, ids.ErrLogCorrupt.
				WithContext("path", path).WithContext("offset", offset).
				WithContext("reason", "hash chain discontinuity")
		}

		entry, err := entryFromDecodedFrame(df)
		if err != nil {
			return 0, nil, err
		}

		chainHash, err := entry.ChainHash()
		if err != nil {
			return 0, nil, err
		}

		if tail.Tree != nil {
			tail.Tree.Append(chainHash)
		}

		prevHash = chainHash
		last = &entry
		offset += consumed
		validSize = int64(offset)
	}

	return validSize, last, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func parseSegmentFirstOp(name string) (ids.OpNumber, bool) {
	base := name[:len(name)-len(".kmseg")]
	var v uint64
	for _, c := range base {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return ids.OpNumber(v), true
}
