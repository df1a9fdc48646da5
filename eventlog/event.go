package eventlog

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is the caller-supplied envelope submitted for storage. It is
// immutable once constructed; the engine never mutates it.
//
// Payload is opaque to the engine — producers own the encoding and the
// schema fields are carried verbatim for their benefit.
type Event struct {
	// Type names what happened, e.g. "Created" or "SchemaDefined".
	Type string `json:"event_type"`

	// Namespace and SchemaID identify the payload's schema; SchemaVersion
	// is the version of that schema the payload was written against.
	Namespace     string `json:"namespace"`
	SchemaID      string `json:"schema_id"`
	SchemaVersion uint32 `json:"schema_version"`

	// AggregateID groups related events for indexed lookup. Nil means the
	// event is unkeyed and will not appear in the aggregate index.
	AggregateID *uint64 `json:"aggregate_id,omitempty"`

	// Payload is the raw event body. Stored and returned byte-for-byte.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Aggregate returns the event's aggregate key and whether one is set.
func (e *Event) Aggregate() (uint64, bool) {
	if e.AggregateID == nil {
		return 0, false
	}
	return *e.AggregateID, true
}

// validate checks the fields a frame cannot be written without.
func (e *Event) validate() error {
	if e.Type == "" {
		return errors.New("eventlog: event type must not be empty")
	}
	return nil
}

// StoredEvent is an Event plus the metadata the engine assigns at append
// time. Instances are created only by the engine and are read-only to
// callers.
type StoredEvent struct {
	Event

	// ID is a ULID assigned at append time, unique across the log.
	ID string `json:"id"`

	// WriteTimestampMs is the UTC millisecond at which the engine accepted
	// the append. Assigned once, never mutated.
	WriteTimestampMs int64 `json:"write_timestamp_ms"`

	// Offset is the byte position of this event's frame in the log file.
	// Derived from the frame's position on read; never serialized.
	Offset uint64 `json:"-"`
}

// monoEntropy is a package-level monotone entropy source shared across all
// newEventID calls so IDs stay lexicographically ordered within the same
// millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// newEventID creates a time-ordered ULID for a stored event.
func newEventID() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
