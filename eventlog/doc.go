// Package eventlog implements an embeddable, in-process append-only event
// log: a durable sequential store for opaque event envelopes plus a
// rebuildable index mapping aggregate keys to byte offsets.
//
// A Log owns exactly one backing file. Events are appended as length-prefixed,
// CRC32-protected frames; the byte offset of a frame is its identity and the
// sole ordering authority. Replay is a pull-based forward scan that stops
// cleanly at a crash-truncated tail and surfaces checksum mismatches as
// corruption errors without skipping past them.
//
// The package manages no consumers, no replication, and no network layer.
// It assumes a single Log instance appends to a given file at a time.
package eventlog
