package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
	"github.com/kimberlitedb/kimberlite-sub005/merkle"
)

// SyncMode controls whether Append acknowledges before or after fsync.
type SyncMode int

const (
	// SyncFsync acknowledges only after a successful fsync — the
	// durable default.
	SyncFsync SyncMode = iota
	// SyncAsync acknowledges before fsync, at the documented risk of a
	// last-record loss window on crash.
	SyncAsync
)

// DefaultMaxSegmentSize is the nominal segment size, 64 MiB.
const DefaultMaxSegmentSize = 64 << 20

// maxShortWriteRetries bounds the retry budget for a short write
// (fewer bytes written than requested); hard I/O errors (ENOSPC,
// EACCES, device errors) are never retried.
const maxShortWriteRetries = 3

// Writer is the exclusive append-only writer for one stream's segment
// files. No concurrent process may write to the same stream; callers
// serialize access to one Writer per stream (the runtime's per-replica
// event loop already guarantees this).
type Writer struct {
	dataDir        string
	stream         ids.StreamId
	maxSegmentSize int64
	syncMode       SyncMode
	log            logging.Logger

	file          *os.File
	segmentFirst  ids.OpNumber
	segmentSize   int64
	nextOffset    ids.Offset
	tailPrevHash  [32]byte
	lastOpNumber  ids.OpNumber
}

// NewWriter opens (or creates) the active segment for stream under
// dataDir, positioned at the tail established by a prior recovery
// scan. Callers must run Recover before NewWriter on process restart;
// NewWriter itself assumes a fresh, empty stream when no recovered
// state is supplied.
func NewWriter(dataDir string, stream ids.StreamId, syncMode SyncMode, log logging.Logger, recovered *RecoveredTail) (*Writer, error) {
	w := &Writer{
		dataDir:        dataDir,
		stream:         stream,
		maxSegmentSize: DefaultMaxSegmentSize,
		syncMode:       syncMode,
		log:            log,
		tailPrevHash:   GenesisPrevHash(),
	}

	if recovered != nil {
		w.nextOffset = recovered.NextOffset
		w.tailPrevHash = recovered.TailHash
		w.lastOpNumber = recovered.LastOpNumber
		w.segmentFirst = recovered.SegmentFirstOp
		w.segmentSize = recovered.SegmentSize
	}

	path := filepath.Join(dataDir, filepath.FromSlash(segmentPath(stream, w.segmentFirst+1)))
	if recovered != nil && recovered.SegmentPath != "" {
		path = recovered.SegmentPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	w.file = f
	return w, nil
}

// RecoveredTail is the state a recovery scan hands to NewWriter so
// appends continue exactly where the log left off.
type RecoveredTail struct {
	NextOffset     ids.Offset
	TailHash       [32]byte
	LastOpNumber   ids.OpNumber
	SegmentFirstOp ids.OpNumber
	SegmentSize    int64
	SegmentPath    string
}

// Append writes one entry to the active segment, assigning PrevHash
// from the tracked tail and Offset from nextOffset. It rolls to a new
// segment first if the frame would take a non-empty active segment
// past maxSegmentSize.
func (w *Writer) Append(op ids.OpNumber, view ids.ViewNumber, tenant ids.TenantId, timestamp int64, eventType string, payload []byte) (LogEntry, error) {
	assert.Invariant(op > w.lastOpNumber, "op number must advance: last=%d new=%d", w.lastOpNumber, op)

	entry := LogEntry{
		OpNumber:  op,
		View:      view,
		Tenant:    tenant,
		Stream:    w.stream,
		Offset:    w.nextOffset,
		Timestamp: timestamp,
		EventType: eventType,
		Payload:   payload,
		PrevHash:  w.tailPrevHash,
	}

	frame, err := EncodeFrame(entry)
	if err != nil {
		return LogEntry{}, err
	}

	if w.segmentSize+int64(len(frame)) > w.maxSegmentSize && w.segmentSize > 0 {
		if err := w.rollSegment(op); err != nil {
			return LogEntry{}, err
		}
	}

	if err := w.writeFrame(frame); err != nil {
		return LogEntry{}, err
	}

	chainHash, err := entry.ChainHash()
	if err != nil {
		return LogEntry{}, err
	}

	w.segmentSize += int64(len(frame))
	w.nextOffset = w.nextOffset.Next()
	w.tailPrevHash = chainHash
	w.lastOpNumber = op

	return entry, nil
}

// writeFrame performs the write-then-fsync contract, retrying short
// writes up to maxShortWriteRetries with a small constant backoff.
// Hard I/O errors (permission, no space, device errors) are surfaced
// immediately without retry.
func (w *Writer) writeFrame(frame []byte) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), maxShortWriteRetries)

	remaining := frame
	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	op := func() error {
		n, werr := w.file.WriteAt(remaining, offset)
		if werr != nil {
			if isHardIOError(werr) {
				return backoff.Permanent(werr)
			}
			return werr
		}
		if n < len(remaining) {
			offset += int64(n)
			remaining = remaining[n:]
			return fmt.Errorf("ledger: short write (%d of %d bytes)", n, len(remaining)+n)
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return err
	}

	if w.syncMode == SyncFsync {
		if err := w.file.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func isHardIOError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EIO)
}

// rollSegment closes the current segment and opens a new one starting
// at firstOp.
func (w *Writer) rollSegment(firstOp ids.OpNumber) error {
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	path := filepath.Join(w.dataDir, filepath.FromSlash(segmentPath(w.stream, firstOp)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.segmentFirst = firstOp
	w.segmentSize = 0
	if w.log != nil {
		w.log.Infow("rolled to new segment", "stream", w.stream.Key(), "first_op", uint64(firstOp))
	}
	return nil
}

// Close closes the active segment file.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Tail reports the current chain tail and next offset, for diagnostics
// and checkpoint construction.
func (w *Writer) Tail() (ids.Offset, [32]byte) {
	return w.nextOffset, w.tailPrevHash
}
