package eventlog

import (
	"errors"
	"math"
)

// Cursor is a lazy, pull-based, forward-only scan over the log's frames.
// Usage follows the bufio.Scanner idiom:
//
//	cur := log.Replay(0)
//	for cur.Next() {
//	    ev := cur.Event()
//	    ...
//	}
//	if err := cur.Err(); err != nil {
//	    // corruption or I/O failure; the scan stopped at that frame
//	}
//
// Each Next decodes exactly one frame — there is no read-ahead, so a cursor
// abandoned early has performed no I/O beyond what was pulled. The scan is
// bounded by the log's logical end: bytes past it, whether an append in
// flight or the residue of a failed one, are never interpreted as frames,
// and reaching the bound ends the scan cleanly with a nil Err.
//
// A corruption or malformed-payload error ends the scan after being recorded
// in Err; the cursor does not attempt to resynchronize past a bad frame,
// since offsets are the only trustworthy positions in the file.
//
// A Cursor is not restartable: call Replay again to scan from the start.
type Cursor struct {
	log   *Log
	next  uint64
	until uint64
	ev    *StoredEvent
	err   error
	done  bool
}

// newCursor builds a cursor scanning [from, until). Starts inside the file
// header are normalized up to the first frame so "offset 0" reads as "from
// the beginning".
func newCursor(l *Log, from, until uint64) *Cursor {
	if from < headerSize {
		from = headerSize
	}
	return &Cursor{log: l, next: from, until: until}
}

// Next advances to the next frame. It returns false when the scan is over,
// either cleanly (end of readable data) or because an error was recorded.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	limit := c.until
	if end := c.log.EndOffset(); end < limit {
		limit = end
	}
	if c.next >= limit {
		c.done = true
		return false
	}

	ev, next, err := decodeFrameAt(c.log.file, c.next, c.log.opts.MaxFrameSize)
	if err != nil {
		c.done = true
		if !errors.Is(err, errIncompleteTail) {
			c.err = err
		}
		return false
	}

	c.ev = ev
	c.next = next
	return true
}

// Event returns the frame decoded by the last successful Next.
func (c *Cursor) Event() *StoredEvent { return c.ev }

// Err returns the error that stopped the scan, or nil if it ended cleanly.
func (c *Cursor) Err() error { return c.err }

// Offset returns the byte position the next pull would read from. After a
// clean end of scan this is the resume point for an incremental rebuild.
func (c *Cursor) Offset() uint64 { return c.next }

// Replay returns a cursor over every frame whose start offset is >= from,
// in offset order, up to the end of readable data.
func (l *Log) Replay(from uint64) *Cursor {
	return newCursor(l, from, math.MaxUint64)
}

// ReplayUntil is Replay bounded on the right: the scan stops before reading
// any frame whose start offset is >= until.
func (l *Log) ReplayUntil(from, until uint64) *Cursor {
	return newCursor(l, from, until)
}
