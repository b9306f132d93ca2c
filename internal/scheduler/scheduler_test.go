package scheduler_test

import (
	"path/filepath"
	"testing"
	"time"

	"agentq/internal/config"
	"agentq/internal/logging"
	"agentq/internal/queue"
	"agentq/internal/scheduler"
)

func newManager(t *testing.T) *queue.Manager {
	t.Helper()
	store := queue.NewStore(filepath.Join(t.TempDir(), "queue.jsonl"), logging.Discard())
	return queue.NewManager(store, logging.Discard())
}

func TestNewRejectsInvalidCron(t *testing.T) {
	cfg := config.Default()
	cfg.Triggers = []config.Trigger{{Name: "bad", Cron: "nope", Prompt: "hi"}}

	if _, err := scheduler.New(cfg, newManager(t), logging.Discard()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNextRunsListsTriggers(t *testing.T) {
	cfg := config.Default()
	cfg.Triggers = []config.Trigger{
		{Name: "daily", Cron: "0 0 9 * * *", Prompt: "morning summary"},
	}

	s, err := scheduler.New(cfg, newManager(t), logging.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	next := s.NextRuns()
	if _, ok := next["daily"]; !ok {
		t.Fatalf("expected next run for %q, got %v", "daily", next)
	}
}

func TestTriggerEnqueuesScheduledEntry(t *testing.T) {
	cfg := config.Default()
	cfg.Triggers = []config.Trigger{
		{Name: "fast", Cron: "* * * * * *", Prompt: "tick", Channel: "slack"},
	}
	manager := newManager(t)

	s, err := scheduler.New(cfg, manager, logging.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if pending := manager.List(queue.StatusPending); len(pending) > 0 {
			entry := pending[0]
			if entry.Payload.Trigger != queue.TriggerScheduled {
				t.Fatalf("expected scheduled trigger, got %q", entry.Payload.Trigger)
			}
			if entry.Payload.Prompt != "tick" || entry.Payload.Channel != "slack" {
				t.Fatalf("unexpected payload: %#v", entry.Payload)
			}
			if entry.Payload.DedupeKey != "trigger:fast" {
				t.Fatalf("expected per-trigger dedupe key, got %q", entry.Payload.DedupeKey)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("trigger never fired")
}
