// Package history persists the append-only audit log of completed run
// attempts. Records are written once and never mutated; they outlive the
// queue entries that produced them.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrNotFound is returned when a run id has no history record.
var ErrNotFound = errors.New("run history record not found")

// Record describes one completed run attempt, one JSON object per line.
type Record struct {
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	Trigger         string    `json:"trigger"`
	Channel         string    `json:"channel,omitempty"`
	Prompt          string    `json:"prompt"`
	DurationSeconds float64   `json:"duration_seconds"`
	ExitCode        int       `json:"exit_code"`
	CostUSD         float64   `json:"cost_usd"`
	Success         bool      `json:"success"`
	PromptFile      string    `json:"prompt_file,omitempty"`
	OutputFile      string    `json:"output_file,omitempty"`
	ReadableFile    string    `json:"readable_file,omitempty"`
}

// Log is the append-only run-history store.
type Log struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewLog creates a history log backed by the file at path.
func NewLog(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{path: path, logger: logger}
}

// Path returns the history file location.
func (l *Log) Path() string { return l.path }

// Append durably adds one record. The log is never rewritten.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("append history record %s: %w", rec.RunID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync history log: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
// A missing log yields an empty slice; corrupt lines are skipped.
func (l *Log) List(limit int) []Record {
	records := l.readAll()
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Get returns the record for a run id.
func (l *Log) Get(runID string) (Record, error) {
	for _, rec := range l.readAll() {
		if rec.RunID == runID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("get %s: %w", runID, ErrNotFound)
}

func (l *Log) readAll() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("history log unreadable", slog.String("path", l.path), slog.Any("error", err))
		}
		return nil
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			l.logger.Warn("skipping malformed history record",
				slog.String("path", l.path), slog.Int("line", line), slog.Any("error", err))
			continue
		}
		records = append(records, rec)
	}
	return records
}
