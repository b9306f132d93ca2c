package history_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentq/internal/history"
	"agentq/internal/logging"
)

func newLog(t *testing.T) *history.Log {
	t.Helper()
	return history.NewLog(filepath.Join(t.TempDir(), "runs.jsonl"), logging.Discard())
}

func record(runID string, success bool) history.Record {
	return history.Record{
		RunID:           runID,
		Timestamp:       time.Now().UTC(),
		Trigger:         "manual",
		Prompt:          "prompt for " + runID,
		DurationSeconds: 1.5,
		CostUSD:         0.01,
		Success:         success,
	}
}

func TestAppendAndList(t *testing.T) {
	log := newLog(t)

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := log.Append(record(id, true)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	runs := log.List(0)
	if len(runs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(runs))
	}
	// Newest first.
	for i, want := range []string{"r3", "r2", "r1"} {
		if runs[i].RunID != want {
			t.Fatalf("expected record %d to be %q, got %q", i, want, runs[i].RunID)
		}
	}
}

func TestListLimit(t *testing.T) {
	log := newLog(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := log.Append(record(id, true)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	runs := log.List(2)
	if len(runs) != 2 || runs[0].RunID != "r3" || runs[1].RunID != "r2" {
		t.Fatalf("unexpected limited list: %#v", runs)
	}
}

func TestListMissingFile(t *testing.T) {
	log := newLog(t)
	if runs := log.List(0); len(runs) != 0 {
		t.Fatalf("expected empty list for missing log, got %d", len(runs))
	}
}

func TestGet(t *testing.T) {
	log := newLog(t)
	if err := log.Append(record("r1", false)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rec, err := log.Get("r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Success {
		t.Fatal("expected failed record")
	}

	if _, err := log.Get("missing"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	content := `{"run_id":"good","timestamp":"2026-01-02T03:04:05Z","trigger":"manual","prompt":"hi","duration_seconds":1,"exit_code":0,"cost_usd":0,"success":true}
{{{ corrupt
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	log := history.NewLog(path, logging.Discard())
	runs := log.List(0)
	if len(runs) != 1 || runs[0].RunID != "good" {
		t.Fatalf("expected only the well-formed record, got %#v", runs)
	}
}
