package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

const ledger = `{
  "runs": {
    "run-b": {
      "childSessionKey": "agent:main:subagent:bbb",
      "requesterSessionKey": "agent:main:main",
      "requesterOrigin": {"channel": "telegram", "to": "123"},
      "label": "nightly-report",
      "task": "Compile the report",
      "model": "anthropic/claude",
      "runTimeoutSeconds": 900,
      "createdAt": 1700000000000,
      "startedAt": "1700000001000",
      "status": "Running"
    },
    "run-a": {
      "runId": "explicit-a",
      "childSessionKey": "agent:main:subagent:aaa",
      "endedAt": 1700000005000,
      "outcome": {"status": "error"}
    },
    "broken": "not an object"
  }
}`

func TestDecodeRunsKeyedLedger(t *testing.T) {
	runs, err := DecodeRuns([]byte(ledger))
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}

	a, b := runs[0], runs[1]
	if a.RunID != "explicit-a" {
		t.Errorf("explicit runId must win over the map key, got %q", a.RunID)
	}
	if !a.Signals.Failed || a.EndedAt != 1700000005000 {
		t.Errorf("outcome.status not resolved: %+v", a)
	}

	if b.RunID != "run-b" {
		t.Errorf("runId should default to the map key, got %q", b.RunID)
	}
	if b.RequesterChannel != "telegram" || b.RunTimeoutSeconds != 900 || b.StartedAt != 1700000001000 {
		t.Errorf("unexpected run %+v", b)
	}
	if want := (agent.Signals{Running: true}); b.Signals != want {
		t.Errorf("signals = %+v, want %+v", b.Signals, want)
	}
}

func TestDecodeRunsShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"runs array", `{"runs":[{"childSessionKey":"k1"},{"childSessionKey":"k2"}]}`, 2},
		{"bare array", `[{"childSessionKey":"k1"}, 7]`, 1},
		{"bare map", `{"r1":{"childSessionKey":"k1"}}`, 1},
		{"empty", `{"runs":{}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := DecodeRuns([]byte(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != tt.want {
				t.Errorf("got %d runs, want %d", len(runs), tt.want)
			}
		})
	}
}

func TestDecodeRunsInvalid(t *testing.T) {
	if _, err := DecodeRuns([]byte(`{"runs":`)); err == nil {
		t.Error("expected error for truncated document")
	}
	if _, err := DecodeRuns([]byte(`"x"`)); err == nil {
		t.Error("expected error for scalar document")
	}
}

func TestRunsReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.json")

	r := NewRunsReader(path)
	runs, err := r.ListRuns(context.Background())
	if err != nil || len(runs) != 0 {
		t.Fatalf("missing ledger: %v, %v", runs, err)
	}

	if err := os.WriteFile(path, []byte(ledger), 0o600); err != nil {
		t.Fatal(err)
	}
	runs, err = r.ListRuns(context.Background())
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns() = %d runs, %v", len(runs), err)
	}

	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ListRuns(context.Background()); err == nil {
		t.Error("expected error for corrupt ledger")
	}
}
