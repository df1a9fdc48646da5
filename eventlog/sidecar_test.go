package eventlog_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/snehjoshi/chronicle/eventlog"
)

func TestSidecar_WrittenOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	l, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustAppend(t, l, makeEvent("Created", keyed(1)))
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(eventlog.SidecarPath(path)); err != nil {
		t.Fatalf("expected sidecar at %s: %v", eventlog.SidecarPath(path), err)
	}
}

func TestSidecar_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	l, err := eventlog.Open(path, eventlog.Options{DisableSidecar: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustAppend(t, l, makeEvent("Created", keyed(1)))
	if err := l.SaveIndex(); err != nil {
		t.Fatalf("SaveIndex with sidecar disabled: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(eventlog.SidecarPath(path)); !os.IsNotExist(err) {
		t.Fatalf("expected no sidecar file, stat err: %v", err)
	}

	// Reopen still rebuilds the index by full replay.
	l2, err := eventlog.Open(path, eventlog.Options{DisableSidecar: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if got := l2.AggregateOffsets(1); len(got) != 1 {
		t.Fatalf("want 1 indexed offset after replay rebuild, got %v", got)
	}
}

func TestSidecar_FreshSnapshotTrustedOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	l, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, k := range []uint64{1, 2, 1} {
		if _, err := l.AppendSync(makeEvent("Created", keyed(k))); err != nil {
			t.Fatalf("AppendSync: %v", err)
		}
	}
	want := indexState(l)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if got := indexState(l2); !reflect.DeepEqual(want, got) {
		t.Fatalf("reloaded index differs:\nwant %v\ngot  %v", want, got)
	}
}

// TestSidecar_StaleSnapshotExtended exercises the valid-prefix repair path:
// a snapshot taken before further appends must be extended by replaying only
// the suffix, and the result must equal a full rebuild of the final log.
func TestSidecar_StaleSnapshotExtended(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	l, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustAppend(t, l, makeEvent("Created", keyed(1)))
	mustAppend(t, l, makeEvent("Created", keyed(2)))
	if err := l.SaveIndex(); err != nil {
		t.Fatalf("SaveIndex: %v", err)
	}

	// Preserve the two-event snapshot, then grow the log past it.
	stale, err := os.ReadFile(eventlog.SidecarPath(path))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	for _, k := range []uint64{1, 3, 2} {
		if _, err := l.AppendSync(makeEvent("Updated", keyed(k))); err != nil {
			t.Fatalf("AppendSync: %v", err)
		}
	}
	want := indexState(l)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Put the stale snapshot back, as if the process had crashed before the
	// final save.
	if err := os.WriteFile(eventlog.SidecarPath(path), stale, 0o640); err != nil {
		t.Fatalf("restore stale sidecar: %v", err)
	}

	l2, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("reopen with stale sidecar: %v", err)
	}
	defer l2.Close()

	if got := indexState(l2); !reflect.DeepEqual(want, got) {
		t.Fatalf("repaired index differs from full state:\nwant %v\ngot  %v", want, got)
	}
}

// TestSidecar_TruncatedLogForcesFullRebuild covers the shrunk-log rule: a
// snapshot whose recorded end exceeds the live file is discarded outright —
// prior offsets may no longer correspond to the same data.
func TestSidecar_TruncatedLogForcesFullRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	l, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustAppend(t, l, makeEvent("Created", keyed(1)))
	mustAppend(t, l, makeEvent("Updated", keyed(1)))
	o3 := mustAppend(t, l, makeEvent("Updated", keyed(1)))
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Roll the log back to before the third frame; the sidecar still claims
	// three events.
	if err := os.Truncate(path, int64(o3)); err != nil {
		t.Fatalf("truncate log: %v", err)
	}

	l2, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("reopen after truncation: %v", err)
	}
	defer l2.Close()

	if got := l2.EndOffset(); got != o3 {
		t.Fatalf("EndOffset after truncation: want %d, got %d", o3, got)
	}
	offs := l2.AggregateOffsets(1)
	if len(offs) != 2 {
		t.Fatalf("want 2 indexed offsets after full rebuild, got %v", offs)
	}
	for _, off := range offs {
		if off >= o3 {
			t.Fatalf("index retains offset %d beyond the truncated end %d", off, o3)
		}
	}
}

// TestSidecar_ReplacedLogDetected covers the last-frame checksum guard: a
// log file swapped for different content of identical length must not be
// trusted against the old snapshot.
func TestSidecar_ReplacedLogDetected(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.log")
	pathB := filepath.Join(dir, "b.log")

	buildLog := func(path string, key uint64) {
		t.Helper()
		l, err := eventlog.Open(path)
		if err != nil {
			t.Fatalf("Open %s: %v", path, err)
		}
		for i := 0; i < 3; i++ {
			if _, err := l.AppendSync(makeEvent("Created", keyed(key))); err != nil {
				t.Fatalf("AppendSync: %v", err)
			}
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	buildLog(pathA, 1)
	buildLog(pathB, 2)

	// Both logs have identical byte lengths (same shapes, fixed-width IDs
	// and timestamps); swap B's data under A's sidecar.
	dataB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("read b.log: %v", err)
	}
	dataA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("read a.log: %v", err)
	}
	if len(dataA) != len(dataB) {
		t.Fatalf("test premise broken: logs differ in length (%d vs %d)", len(dataA), len(dataB))
	}
	if err := os.WriteFile(pathA, dataB, 0o640); err != nil {
		t.Fatalf("replace a.log: %v", err)
	}

	l, err := eventlog.Open(pathA)
	if err != nil {
		t.Fatalf("reopen replaced log: %v", err)
	}
	defer l.Close()

	got := l.Aggregates()
	if !reflect.DeepEqual(got, []uint64{2}) {
		t.Fatalf("want index rebuilt from replacement content (keys [2]), got %v", got)
	}
}

func TestSidecar_MissingSidecarRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	l, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.AppendSync(makeEvent("Created", keyed(9))); err != nil {
		t.Fatalf("AppendSync: %v", err)
	}
	want := indexState(l)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := os.Remove(eventlog.SidecarPath(path)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}

	l2, err := eventlog.Open(path)
	if err != nil {
		t.Fatalf("reopen without sidecar: %v", err)
	}
	defer l2.Close()

	if got := indexState(l2); !reflect.DeepEqual(want, got) {
		t.Fatalf("rebuilt index differs:\nwant %v\ngot  %v", want, got)
	}
}
