package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentq/internal/config"
)

func TestDefaults(t *testing.T) {
	t.Setenv("AGENTQ_DATA", filepath.Join(t.TempDir(), "data"))

	cfg := config.Default()
	if cfg.AgentBinary != "claude" {
		t.Fatalf("unexpected agent binary: %q", cfg.AgentBinary)
	}
	if cfg.PollSeconds != 5 {
		t.Fatalf("unexpected poll seconds: %d", cfg.PollSeconds)
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.RunTimeout() != 30*time.Minute {
		t.Fatalf("unexpected run timeout: %s", cfg.RunTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTQ_DATA", dir)

	cfg := config.Default()
	if cfg.DataDir != dir {
		t.Fatalf("expected data dir %q, got %q", dir, cfg.DataDir)
	}
	if cfg.QueuePath() != filepath.Join(dir, "queue.jsonl") {
		t.Fatalf("unexpected queue path: %q", cfg.QueuePath())
	}
	if cfg.LockPath() != filepath.Join(dir, "run.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("AGENTQ_DATA", t.TempDir())

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIPort != 8080 {
		t.Fatalf("expected default api port, got %d", cfg.APIPort)
	}
}

func TestLoadTOML(t *testing.T) {
	t.Setenv("AGENTQ_DATA", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
agent_binary = "my-agent"
poll_seconds = 2
run_timeout_minutes = 5
api_port = 9090
log_level = "debug"

[[triggers]]
name = "daily"
cron = "0 0 9 * * *"
prompt = "Summarize the day"
channel = "slack"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AgentBinary != "my-agent" {
		t.Fatalf("unexpected agent binary: %q", cfg.AgentBinary)
	}
	if cfg.RunTimeout() != 5*time.Minute {
		t.Fatalf("unexpected run timeout: %s", cfg.RunTimeout())
	}
	if cfg.APIPort != 9090 {
		t.Fatalf("unexpected api port: %d", cfg.APIPort)
	}
	if len(cfg.Triggers) != 1 || cfg.Triggers[0].Name != "daily" {
		t.Fatalf("unexpected triggers: %#v", cfg.Triggers)
	}
}

func TestValidateRejectsBadTrigger(t *testing.T) {
	t.Setenv("AGENTQ_DATA", t.TempDir())

	cfg := config.Default()
	cfg.Triggers = []config.Trigger{{Name: "bad", Cron: "not a cron", Prompt: "hi"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}

	cfg.Triggers = []config.Trigger{{Name: "empty", Cron: "0 * * * * *", Prompt: ""}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty trigger prompt")
	}
}

func TestValidateRejectsNonPositivePoll(t *testing.T) {
	t.Setenv("AGENTQ_DATA", t.TempDir())

	cfg := config.Default()
	cfg.PollSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}
