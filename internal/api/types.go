package api

import "time"

// EnqueueRequest represents a request to queue a new run.
type EnqueueRequest struct {
	Prompt          string `json:"prompt"`
	Channel         string `json:"channel,omitempty"`
	SourceSessionID string `json:"source_session_id,omitempty"`
	DedupeKey       string `json:"dedupe_key,omitempty"`
	AtFront         bool   `json:"at_front,omitempty"`
}

// EntryResponse represents a queue entry in API responses.
type EntryResponse struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Prompt          string     `json:"prompt"`
	Channel         string     `json:"channel,omitempty"`
	SourceSessionID string     `json:"source_session_id,omitempty"`
	Trigger         string     `json:"trigger"`
	DedupeKey       string     `json:"dedupe_key,omitempty"`
	EnqueuedAt      time.Time  `json:"enqueued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	CostUSD         *float64   `json:"cost_usd,omitempty"`
	Success         *bool      `json:"success,omitempty"`
	Detail          string     `json:"detail,omitempty"`
}

// QueueListResponse represents the queue contents.
type QueueListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
}

// RunResponse represents a run history record in API responses.
type RunResponse struct {
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
	Output          string    `json:"output,omitempty"`
}

// RunListResponse represents a list of run history records.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Total int           `json:"total"`
}

// StatusResponse represents the daemon status.
type StatusResponse struct {
	Pending      int                  `json:"pending"`
	Running      *EntryResponse       `json:"running,omitempty"`
	LockHeld     bool                 `json:"lock_held"`
	NextTriggers map[string]time.Time `json:"next_triggers,omitempty"`
	Version      string               `json:"version"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// SSEOutputChunk represents an output chunk sent via SSE.
type SSEOutputChunk struct {
	RunID     string `json:"run_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsError   bool   `json:"is_error,omitempty"`
}

// SSECompletionEvent represents a completion event sent via SSE.
type SSECompletionEvent struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
