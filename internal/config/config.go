package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Trigger declares a recurring run enqueued on a cron schedule.
type Trigger struct {
	Name    string `toml:"name"`
	Cron    string `toml:"cron"`
	Prompt  string `toml:"prompt"`
	Channel string `toml:"channel"`
}

// Config holds all daemon settings. Zero values are filled in by Default.
type Config struct {
	DataDir string `toml:"data_dir"`

	AgentBinary string   `toml:"agent_binary"`
	AgentArgs   []string `toml:"agent_args"`
	WorkingDir  string   `toml:"working_dir"`

	PollSeconds            int `toml:"poll_seconds"`
	RunTimeoutMinutes      int `toml:"run_timeout_minutes"`
	RetentionDays          int `toml:"retention_days"`
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`

	APIPort int `toml:"api_port"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	DiscordWebhook string `toml:"discord_webhook"`
	SlackWebhook   string `toml:"slack_webhook"`

	Triggers []Trigger `toml:"triggers"`
}

// Default returns the built-in configuration. AGENTQ_DATA overrides the
// data directory, matching the daemon's documented environment surface.
func Default() *Config {
	dataDir := os.Getenv("AGENTQ_DATA")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".agentq")
	}
	return &Config{
		DataDir:                dataDir,
		AgentBinary:            "claude",
		WorkingDir:             ".",
		PollSeconds:            5,
		RunTimeoutMinutes:      30,
		RetentionDays:          7,
		CleanupIntervalMinutes: 60,
		APIPort:                8080,
		LogLevel:               "info",
		LogFormat:              "console",
	}
}

// Load reads the TOML config at path, layered over Default. A missing file
// is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the config file location, honoring AGENTQ_CONFIG.
func DefaultPath() string {
	if p := os.Getenv("AGENTQ_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agentq", "config.toml")
}

// Validate checks settings that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if strings.TrimSpace(c.AgentBinary) == "" {
		return fmt.Errorf("agent_binary must not be empty")
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, t := range c.Triggers {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("trigger name must not be empty")
		}
		if strings.TrimSpace(t.Prompt) == "" {
			return fmt.Errorf("trigger %q: prompt must not be empty", t.Name)
		}
		if _, err := parser.Parse(t.Cron); err != nil {
			return fmt.Errorf("trigger %q: invalid cron expression %q: %w", t.Name, t.Cron, err)
		}
	}
	return nil
}

// EnsureDataDir creates the data directory tree used by the stores.
func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.RunsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	return nil
}

// QueuePath returns the queue entry log location.
func (c *Config) QueuePath() string { return filepath.Join(c.DataDir, "queue.jsonl") }

// HistoryPath returns the run-history log location.
func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, "runs.jsonl") }

// LockPath returns the execution lock file location.
func (c *Config) LockPath() string { return filepath.Join(c.DataDir, "run.lock") }

// RunsDir returns the directory holding per-run artifact files.
func (c *Config) RunsDir() string { return filepath.Join(c.DataDir, "runs") }

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string { return filepath.Join(c.DataDir, "agentq.log") }

// PollInterval returns the worker poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// RunTimeout returns the per-run execution timeout. Zero disables it.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often the worker prunes old terminal entries.
func (c *Config) CleanupInterval() time.Duration {
	if c.CleanupIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// Retention returns the terminal-entry retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
