package eventlog

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

// The persisted index sidecar is a bbolt database stored next to the log
// file. It is advisory only: a snapshot of the aggregate index plus the log
// length it was taken at. Open validates it against the live log and falls
// back to a partial or full replay whenever it is stale — the sidecar is
// never the authority, the log is.
//
// Layout:
//
//	bucket "meta":
//	  "snapshot_version" → uint16 BE
//	  "log_end_offset"   → uint64 BE   (log length observed at save time)
//	  "log_checksum"     → uint32 BE   (CRC32 trailer of the last frame; absent on an empty log)
//	bucket "aggregates":
//	  aggregate key uint64 BE → concatenated uint64 BE offsets, append order

const sidecarSuffix = ".idx"

// snapshotVersion identifies the sidecar layout. A mismatch is treated as
// "no snapshot" and forces a full rebuild.
const snapshotVersion uint16 = 1

var (
	bucketMeta       = []byte("meta")
	bucketAggregates = []byte("aggregates")

	keySnapVersion  = []byte("snapshot_version")
	keyEndOffset    = []byte("log_end_offset")
	keyLastChecksum = []byte("log_checksum")
)

// SidecarPath returns the sidecar location derived from a log path.
func SidecarPath(logPath string) string { return logPath + sidecarSuffix }

// sidecar wraps the bbolt handle for a log's persisted index. It is held
// open for the lifetime of the Log; bbolt's file lock doubles as a guard
// against a second process opening the same log for writing.
type sidecar struct {
	db *bbolt.DB
}

// openSidecar opens (or creates) the sidecar database at path.
func openSidecar(path string) (*sidecar, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sidecar %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketAggregates)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: init sidecar buckets: %w", err)
	}
	return &sidecar{db: db}, nil
}

// indexSnapshot is the decoded content of a sidecar.
type indexSnapshot struct {
	endOffset    uint64
	lastChecksum uint32
	hasChecksum  bool
	byKey        map[uint64][]uint64
}

// load reads the snapshot, or returns nil if none has been saved yet (or it
// was written by an unknown layout version).
func (s *sidecar) load() (*indexSnapshot, error) {
	var snap *indexSnapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)

		ver := meta.Get(keySnapVersion)
		if len(ver) != 2 || binary.BigEndian.Uint16(ver) != snapshotVersion {
			return nil
		}
		end := meta.Get(keyEndOffset)
		if len(end) != 8 {
			return nil
		}

		snap = &indexSnapshot{
			endOffset: binary.BigEndian.Uint64(end),
			byKey:     make(map[uint64][]uint64),
		}
		if sum := meta.Get(keyLastChecksum); len(sum) == 4 {
			snap.lastChecksum = binary.BigEndian.Uint32(sum)
			snap.hasChecksum = true
		}

		return tx.Bucket(bucketAggregates).ForEach(func(k, v []byte) error {
			if len(k) != 8 || len(v)%8 != 0 {
				return fmt.Errorf("eventlog: sidecar entry has invalid shape (key %d bytes, value %d bytes)",
					len(k), len(v))
			}
			offsets := make([]uint64, 0, len(v)/8)
			for i := 0; i < len(v); i += 8 {
				offsets = append(offsets, binary.BigEndian.Uint64(v[i:]))
			}
			snap.byKey[binary.BigEndian.Uint64(k)] = offsets
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: load sidecar: %w", err)
	}
	return snap, nil
}

// save replaces the stored snapshot with the given index state in a single
// ACID transaction.
func (s *sidecar) save(endOffset uint64, lastChecksum uint32, hasChecksum bool, ix *aggregateIndex) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		// Rewrite the aggregates bucket wholesale; an incremental diff is
		// not worth the bookkeeping at sidecar-save frequency.
		if err := tx.DeleteBucket(bucketAggregates); err != nil {
			return err
		}
		agg, err := tx.CreateBucket(bucketAggregates)
		if err != nil {
			return err
		}
		for key, offsets := range ix.byKey {
			var k [8]byte
			binary.BigEndian.PutUint64(k[:], key)
			v := make([]byte, 0, len(offsets)*8)
			for _, off := range offsets {
				v = binary.BigEndian.AppendUint64(v, off)
			}
			if err := agg.Put(k[:], v); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		var ver [2]byte
		binary.BigEndian.PutUint16(ver[:], snapshotVersion)
		if err := meta.Put(keySnapVersion, ver[:]); err != nil {
			return err
		}
		var end [8]byte
		binary.BigEndian.PutUint64(end[:], endOffset)
		if err := meta.Put(keyEndOffset, end[:]); err != nil {
			return err
		}
		if hasChecksum {
			var sum [4]byte
			binary.BigEndian.PutUint32(sum[:], lastChecksum)
			return meta.Put(keyLastChecksum, sum[:])
		}
		return meta.Delete(keyLastChecksum)
	})
	if err != nil {
		return fmt.Errorf("eventlog: save sidecar: %w", err)
	}
	return nil
}

// Close closes the underlying bbolt database.
func (s *sidecar) Close() error {
	return s.db.Close()
}
