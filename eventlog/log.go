package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Log is the single owning handle for one log file plus its in-memory
// aggregate index. It holds the open file descriptor and the current end
// offset for the lifetime of the session; no other component mutates them.
//
// All methods are safe for concurrent use within one process, but exactly
// one Log instance may append to a given file at a time. Readers obtained
// via Replay use positioned reads and may run concurrently with an
// in-flight append: scans are bounded by the logical end, so a frame
// mid-write or the remains of a failed append are never interpreted as
// frames.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
	opts Options
	hdr  header

	// end is the logical end of the log: the offset the next frame will be
	// written at. It only advances on a fully successful append, so a failed
	// write leaves no partial state visible to callers even if the file
	// already contains dangling bytes.
	end uint64

	// lastChecksum is the CRC32 trailer of the last complete frame, saved
	// into the sidecar so a reopened log can detect same-length replacement.
	lastChecksum uint32
	hasChecksum  bool

	index *aggregateIndex
	side  *sidecar // nil when Options.DisableSidecar is set

	closed bool
}

// Open opens (creating if absent) the log file at path for combined
// read/append access and restores the aggregate index — from the sidecar
// when it matches a valid prefix of the file, by replay otherwise.
//
// A dangling partial frame left by a crash mid-append is truncated away so
// the next append starts at a clean frame boundary. A checksum mismatch
// inside the readable region fails the open with a CorruptionError.
func Open(path string, opts ...Options) (*Log, error) {
	o := DefaultOptions()
	for _, over := range opts {
		o = o.merge(over)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}

	l := &Log{file: f, path: path, opts: o, index: newAggregateIndex()}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("eventlog: stat %s: %w", path, err)
	}

	fileLen := uint64(info.Size())
	if fileLen == 0 {
		hdr, err := writeHeader(f, nowMs())
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		l.hdr = hdr
		fileLen = headerSize
	} else {
		hdr, err := readHeader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		l.hdr = hdr
	}

	if !o.DisableSidecar {
		side, err := openSidecar(SidecarPath(path))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		l.side = side
	}

	if err := l.recover(fileLen); err != nil {
		_ = f.Close()
		if l.side != nil {
			_ = l.side.Close()
		}
		return nil, err
	}

	return l, nil
}

// recover restores the end offset and aggregate index from the sidecar plus
// a replay of whatever the sidecar does not cover.
func (l *Log) recover(fileLen uint64) error {
	scanStart := uint64(headerSize)

	if l.side != nil {
		snap, err := l.side.load()
		if err != nil {
			return err
		}
		if snap != nil && l.adoptSnapshot(snap, fileLen) {
			scanStart = snap.endOffset
		}
	}

	validEnd, err := l.scanFrom(scanStart, fileLen)
	if err != nil {
		return err
	}

	if validEnd < fileLen {
		// Crash artifact: the file ends in a partial frame. Drop it so the
		// next append starts at a clean frame boundary.
		if err := l.file.Truncate(int64(validEnd)); err != nil {
			return fmt.Errorf("eventlog: truncate partial tail at offset %d: %w", validEnd, err)
		}
	}
	l.end = validEnd

	if l.end > headerSize {
		var sum [checksumSize]byte
		if _, err := l.file.ReadAt(sum[:], int64(l.end)-checksumSize); err != nil {
			return fmt.Errorf("eventlog: read last frame checksum: %w", err)
		}
		l.lastChecksum = binary.BigEndian.Uint32(sum[:])
		l.hasChecksum = true
	}
	return nil
}

// adoptSnapshot validates snap against the live log and, when it covers a
// valid prefix, seeds the in-memory index from it. Returns false when the
// snapshot must be discarded:
//   - its end offset exceeds the file length (log truncated or replaced —
//     prior offsets may no longer correspond to the same data), or
//   - the frame ending at its end offset no longer carries the checksum
//     recorded at save time (log replaced with same-length data).
func (l *Log) adoptSnapshot(snap *indexSnapshot, fileLen uint64) bool {
	if snap.endOffset < headerSize || snap.endOffset > fileLen {
		return false
	}
	if snap.endOffset > headerSize && snap.hasChecksum {
		var sum [checksumSize]byte
		if _, err := l.file.ReadAt(sum[:], int64(snap.endOffset)-checksumSize); err != nil {
			return false
		}
		if binary.BigEndian.Uint32(sum[:]) != snap.lastChecksum {
			return false
		}
	}
	for key, offsets := range snap.byKey {
		for _, off := range offsets {
			l.index.add(key, off)
		}
	}
	return true
}

// scanFrom replays frames from offset start up to limit, merging aggregate
// keys into the in-memory index, and returns the offset one past the last
// complete frame.
func (l *Log) scanFrom(start, limit uint64) (uint64, error) {
	if start < headerSize {
		start = headerSize
	}
	offset := start
	for offset < limit {
		ev, next, err := decodeFrameAt(l.file, offset, l.opts.MaxFrameSize)
		if err != nil {
			if errors.Is(err, errIncompleteTail) {
				return offset, nil
			}
			return 0, err
		}
		if key, ok := ev.Aggregate(); ok {
			l.index.add(key, ev.Offset)
		}
		offset = next
	}
	return offset, nil
}

// Append writes ev as a frame at the end of the log and returns its offset.
// The write lands in the operating system's buffer without an fsync: fast,
// but the frame can be lost if the machine crashes before the OS persists
// it. Use AppendSync when the frame must survive a crash.
func (l *Log) Append(ev Event) (uint64, error) {
	return l.append(ev, false)
}

// AppendSync is Append followed by a full sync to stable storage. When it
// returns successfully the frame is guaranteed durable. A sync failure is
// fatal for that append: the logical end does not advance, and the caller
// decides whether the frame — present in the OS buffer, not guaranteed on
// disk — should be considered written.
func (l *Log) AppendSync(ev Event) (uint64, error) {
	return l.append(ev, true)
}

func (l *Log) append(ev Event, sync bool) (uint64, error) {
	if err := ev.validate(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	id, err := newEventID()
	if err != nil {
		return 0, fmt.Errorf("eventlog: assign event id: %w", err)
	}

	se := &StoredEvent{Event: ev, ID: id, WriteTimestampMs: nowMs(), Offset: l.end}
	frame, checksum, err := encodeFrame(se, l.opts.MaxFrameSize)
	if err != nil {
		return 0, err
	}

	// Positioned write at the logical end: if a previous append failed after
	// a partial write, its dangling bytes are simply overwritten.
	if _, err := l.file.WriteAt(frame, int64(l.end)); err != nil {
		// Best effort: drop whatever partial bytes landed so the file ends
		// at a clean frame boundary again.
		_ = l.file.Truncate(int64(l.end))
		return 0, fmt.Errorf("eventlog: write frame at offset %d: %w", l.end, err)
	}
	if sync {
		if err := l.file.Sync(); err != nil {
			return 0, fmt.Errorf("eventlog: sync frame at offset %d: %w", l.end, err)
		}
	}

	offset := l.end
	l.end += uint64(len(frame))
	l.lastChecksum = checksum
	l.hasChecksum = true
	if key, ok := ev.Aggregate(); ok {
		l.index.add(key, offset)
	}
	return offset, nil
}

// LoadAggregate returns the events recorded under key, in append order.
// Each listed offset is read directly — no scan. A key with no entries
// returns an empty result, not an error.
func (l *Log) LoadAggregate(key uint64) ([]*StoredEvent, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	offsets := l.index.offsets(key)
	l.mu.Unlock()

	out := make([]*StoredEvent, 0, len(offsets))
	for _, off := range offsets {
		ev, _, err := decodeFrameAt(l.file, off, l.opts.MaxFrameSize)
		if err != nil {
			if errors.Is(err, errIncompleteTail) {
				// An indexed frame can only be incomplete if the file shrank
				// underneath a live handle.
				return nil, fmt.Errorf("eventlog: indexed frame at offset %d is incomplete", off)
			}
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// RebuildIndexFrom replays the log from start to the end of readable data
// and merges the result additively into the aggregate index. The log has no
// deletion, so the merge never removes entries and is idempotent when
// resumed from any already-indexed position. Rebuilding from 0 on any log
// produces an index identical to the one maintained incrementally.
func (l *Log) RebuildIndexFrom(start uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	// Bound at the logical end: bytes past it are not part of the log.
	_, err := l.scanFrom(start, l.end)
	return err
}

// AggregateOffsets returns the frame offsets recorded under key, in append
// order. The slice is a copy.
func (l *Log) AggregateOffsets(key uint64) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.offsets(key)
}

// Aggregates returns every indexed aggregate key in ascending order.
func (l *Log) Aggregates() []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.keys()
}

// SaveIndex persists the current aggregate index to the sidecar, recording
// the log's end offset and last frame checksum for staleness detection on
// the next Open. A no-op when the sidecar is disabled.
func (l *Log) SaveIndex() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.saveIndexLocked()
}

func (l *Log) saveIndexLocked() error {
	if l.side == nil {
		return nil
	}
	return l.side.save(l.end, l.lastChecksum, l.hasChecksum, l.index)
}

// Close persists the index sidecar, flushes the log file, and releases both
// handles. Safe to call multiple times; only the first call does the work.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	saveErr := l.saveIndexLocked()
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	var sideErr error
	if l.side != nil {
		sideErr = l.side.Close()
	}

	if saveErr != nil {
		return saveErr
	}
	if syncErr != nil {
		return fmt.Errorf("eventlog: sync on close: %w", syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("eventlog: close %s: %w", l.path, closeErr)
	}
	if sideErr != nil {
		return sideErr
	}
	return nil
}

// EndOffset returns the logical end of the log — the offset the next
// successful append will return.
func (l *Log) EndOffset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.end
}

// Path returns the filesystem path of the log file.
func (l *Log) Path() string { return l.path }

// CreatedAt returns the creation timestamp recorded in the file header.
func (l *Log) CreatedAt() time.Time { return time.UnixMilli(l.hdr.CreatedMs) }
