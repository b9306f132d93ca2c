package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Trigger values recorded on a payload.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

var allStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// Payload describes the job carried by a queue entry. It is opaque to the
// store; only the worker and its runner interpret it.
type Payload struct {
	Prompt          string `json:"prompt"`
	Channel         string `json:"channel,omitempty"`
	SourceSessionID string `json:"source_session_id,omitempty"`
	Trigger         string `json:"trigger"`
	DedupeKey       string `json:"dedupe_key,omitempty"`
}

// Result captures the terminal outcome of an executed entry.
type Result struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
	CostUSD         float64 `json:"cost_usd"`
	Success         bool    `json:"success"`
	Detail          string  `json:"detail,omitempty"`
}

// Entry is one unit of queued work awaiting or having undergone execution.
type Entry struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Payload    Payload    `json:"payload"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// Terminal reports whether the entry has reached a final state.
func (e Entry) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}
