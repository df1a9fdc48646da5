package cli_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snehjoshi/chronicle/internal/cli"
)

// execute runs the chronicle root command with args and captures its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestAppendAndReplay(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")

	out, err := execute(t, "append", log,
		"--type", "Created",
		"--namespace", "accounts",
		"--schema", "Person",
		"--aggregate", "1",
		"--payload", `{"name":"Leandro"}`,
		"--sync")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.HasPrefix(out, "appended event at offset ") {
		t.Fatalf("unexpected append output: %q", out)
	}

	if _, err := execute(t, "append", log, "--type", "Updated", "--aggregate", "1",
		"--payload", `{"name":"Juan"}`); err != nil {
		t.Fatalf("second append: %v", err)
	}

	out, err = execute(t, "replay", log)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 replay lines, got %d: %q", len(lines), out)
	}

	var rec struct {
		Offset    uint64 `json:"offset"`
		EventType string `json:"event_type"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("parse replay line: %v", err)
	}
	if rec.EventType != "Created" || rec.ID == "" {
		t.Fatalf("unexpected first record: %+v", rec)
	}
}

func TestAggregateCommand(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")

	for _, args := range [][]string{
		{"append", log, "--type", "Created", "--aggregate", "1"},
		{"append", log, "--type", "Created", "--aggregate", "2"},
		{"append", log, "--type", "Updated", "--aggregate", "1"},
	} {
		if _, err := execute(t, args...); err != nil {
			t.Fatalf("append %v: %v", args, err)
		}
	}

	out, err := execute(t, "aggregate", log, "1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 events for key 1, got %d: %q", len(lines), out)
	}

	// An unseen key prints nothing and succeeds.
	out, err = execute(t, "aggregate", log, "99")
	if err != nil {
		t.Fatalf("aggregate unseen key: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("want empty output for unseen key, got %q", out)
	}
}

func TestAppendRequiresType(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")
	if _, err := execute(t, "append", log); err == nil {
		t.Fatal("expected error when --type is missing")
	}
}

func TestAppendRejectsBadPayload(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")
	if _, err := execute(t, "append", log, "--type", "Created", "--payload", "{broken"); err == nil {
		t.Fatal("expected error for invalid JSON payload")
	}
}

func TestInfoCommand(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")

	if _, err := execute(t, "append", log, "--type", "Created", "--aggregate", "7"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := execute(t, "info", log)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"path:", "end offset:", "events:        1 (1 keyed)", "aggregates:    1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output missing %q:\n%s", want, out)
		}
	}

	// Every value starts in the same column.
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if len(line) <= 15 || line[14] != ' ' || line[15] == ' ' {
			t.Fatalf("misaligned info line: %q", line)
		}
	}
}

func TestIndexRebuildCommand(t *testing.T) {
	log := filepath.Join(t.TempDir(), "events.log")

	if _, err := execute(t, "append", log, "--type", "Created", "--aggregate", "3"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := execute(t, "index", "rebuild", log)
	if err != nil {
		t.Fatalf("index rebuild: %v", err)
	}
	if !strings.Contains(out, "index saved to") || !strings.Contains(out, "1 aggregates") {
		t.Fatalf("unexpected rebuild output: %q", out)
	}
}
