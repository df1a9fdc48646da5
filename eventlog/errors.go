package eventlog

import (
	"errors"
	"fmt"
)

// Sentinel errors. Engine-detected failures wrap one of these so callers can
// classify with errors.Is and react differently — e.g. stop replay on
// ErrCorrupted but retry a transient I/O failure.
var (
	// ErrCorrupted means a frame's stored checksum does not match its
	// payload bytes.
	ErrCorrupted = errors.New("eventlog: frame corrupted")

	// ErrMalformed means a frame passed its checksum but its payload is not
	// a valid serialized event. Should not happen with a trusted writer.
	ErrMalformed = errors.New("eventlog: frame payload malformed")

	// ErrFrameTooLarge means a frame's payload exceeds the configured
	// MaxFrameSize, either on the write path or as a declared length read
	// from disk (an implausible prefix is rejected before allocation).
	ErrFrameTooLarge = errors.New("eventlog: frame exceeds size limit")

	// ErrBadHeader means the file does not begin with a valid log header.
	ErrBadHeader = errors.New("eventlog: bad file header")

	// ErrClosed is returned by operations on a closed Log.
	ErrClosed = errors.New("eventlog: log is closed")
)

// errIncompleteTail signals that fewer bytes remain than a frame declares.
// It is the benign end-of-readable-data condition (crash mid-append, or a
// reader racing an in-flight append) and is never surfaced to callers; the
// replay cursor converts it into a clean stop.
var errIncompleteTail = errors.New("eventlog: incomplete tail")

// CorruptionError reports a checksum mismatch at a specific frame offset.
// It matches ErrCorrupted under errors.Is.
type CorruptionError struct {
	Offset   uint64
	Stored   uint32
	Computed uint32
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("eventlog: frame at offset %d corrupted (stored crc %08x, computed %08x)",
		e.Offset, e.Stored, e.Computed)
}

// Is reports whether target is ErrCorrupted.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupted }

// MalformedError reports a frame whose payload passed its checksum but could
// not be deserialized. It matches ErrMalformed under errors.Is.
type MalformedError struct {
	Offset uint64
	Cause  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("eventlog: frame at offset %d has malformed payload: %v", e.Offset, e.Cause)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }
