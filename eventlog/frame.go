package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"
)

// logMagic is the 4-byte marker at the start of every log file. A reader
// that does not find it fails fast rather than interpreting the file as
// frame data.
var logMagic = [4]byte{0x43, 0x4C, 0x4F, 0x47} // "CLOG"

// formatVersion identifies the on-disk frame format. Increment if the format
// ever changes — old files will be rejected rather than silently misread.
const formatVersion uint16 = 1

// File header layout, all fields big-endian:
//
//	[magic    : 4 bytes]
//	[version  : 2 bytes, uint16]
//	[flags    : 2 bytes, uint16, reserved — always 0]
//	[createdMs: 8 bytes, int64, UTC ms the log was created]
const headerSize = 4 + 2 + 2 + 8 // = 16

// Frame layout, all fields big-endian:
//
//	[payloadLen : 4 bytes, uint32]
//	[payload    : payloadLen bytes, JSON-serialized StoredEvent]
//	[checksum   : 4 bytes, uint32, CRC32 (IEEE) of the payload bytes only]
//
// payloadLen covers the payload alone; the checksum likewise covers the
// payload alone. The same scope is applied on encode and decode — any
// asymmetry here would silently break corruption detection.
const (
	lenPrefixSize = 4
	checksumSize  = 4
	frameOverhead = lenPrefixSize + checksumSize
)

// header holds the decoded file header fields.
type header struct {
	Version   uint16
	Flags     uint16
	CreatedMs int64
}

// writeHeader writes a fresh header at the start of f and syncs it.
func writeHeader(f *os.File, createdMs int64) (header, error) {
	var buf [headerSize]byte
	copy(buf[:4], logMagic[:])
	binary.BigEndian.PutUint16(buf[4:], formatVersion)
	binary.BigEndian.PutUint16(buf[6:], 0)
	binary.BigEndian.PutUint64(buf[8:], uint64(createdMs))

	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return header{}, fmt.Errorf("eventlog: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return header{}, fmt.Errorf("eventlog: sync header: %w", err)
	}
	return header{Version: formatVersion, CreatedMs: createdMs}, nil
}

// readHeader reads and validates the header at the start of f.
func readHeader(f *os.File) (header, error) {
	var buf [headerSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, fmt.Errorf("eventlog: file shorter than header: %w", ErrBadHeader)
		}
		return header{}, fmt.Errorf("eventlog: read header: %w", err)
	}
	if [4]byte(buf[:4]) != logMagic {
		return header{}, fmt.Errorf("eventlog: magic mismatch: %w", ErrBadHeader)
	}
	h := header{
		Version:   binary.BigEndian.Uint16(buf[4:]),
		Flags:     binary.BigEndian.Uint16(buf[6:]),
		CreatedMs: int64(binary.BigEndian.Uint64(buf[8:])),
	}
	if h.Version != formatVersion {
		return header{}, fmt.Errorf("eventlog: unsupported format version %d: %w", h.Version, ErrBadHeader)
	}
	return h, nil
}

// encodeFrame serialises se into a complete frame ready to be written at the
// end of the log. The returned checksum is the frame's CRC32 trailer value.
func encodeFrame(se *StoredEvent, maxFrameSize uint32) (frame []byte, checksum uint32, err error) {
	payload, err := json.Marshal(se)
	if err != nil {
		return nil, 0, fmt.Errorf("eventlog: encode event: %w", err)
	}
	if uint64(len(payload)) > uint64(maxFrameSize) {
		return nil, 0, fmt.Errorf("eventlog: payload is %d bytes (limit %d): %w",
			len(payload), maxFrameSize, ErrFrameTooLarge)
	}

	buf := make([]byte, 0, frameOverhead+len(payload))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	checksum = crc32.ChecksumIEEE(payload)
	buf = binary.BigEndian.AppendUint32(buf, checksum)
	return buf, checksum, nil
}

// decodeFrameAt reads and decodes exactly one frame starting at offset.
// It returns the decoded event (with Offset set) and the offset of the next
// frame.
//
// If fewer bytes remain than the frame declares, errIncompleteTail is
// returned — the expected signature of a crash mid-append or of reading
// concurrently with an in-flight append, never an error to surface.
func decodeFrameAt(r io.ReaderAt, offset uint64, maxFrameSize uint32) (*StoredEvent, uint64, error) {
	var lenBuf [lenPrefixSize]byte
	if _, err := r.ReadAt(lenBuf[:], int64(offset)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, errIncompleteTail
		}
		return nil, 0, fmt.Errorf("eventlog: read length prefix at offset %d: %w", offset, err)
	}

	payloadLen := binary.BigEndian.Uint32(lenBuf[:])
	if payloadLen > maxFrameSize {
		// A corrupted length prefix must not drive an unbounded allocation.
		return nil, 0, fmt.Errorf("eventlog: frame at offset %d declares %d bytes (limit %d): %w",
			offset, payloadLen, maxFrameSize, ErrFrameTooLarge)
	}

	buf := make([]byte, int(payloadLen)+checksumSize)
	if _, err := r.ReadAt(buf, int64(offset)+lenPrefixSize); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, errIncompleteTail
		}
		return nil, 0, fmt.Errorf("eventlog: read frame at offset %d: %w", offset, err)
	}

	payload := buf[:payloadLen]
	stored := binary.BigEndian.Uint32(buf[payloadLen:])
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return nil, 0, &CorruptionError{Offset: offset, Stored: stored, Computed: computed}
	}

	se := &StoredEvent{}
	if err := json.Unmarshal(payload, se); err != nil {
		return nil, 0, &MalformedError{Offset: offset, Cause: err}
	}
	se.Offset = offset

	return se, offset + frameOverhead + uint64(payloadLen), nil
}

// nowMs returns the current UTC time in milliseconds since the Unix epoch.
func nowMs() int64 { return time.Now().UnixMilli() }
