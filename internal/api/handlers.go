package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agentq/internal/history"
	"agentq/internal/queue"
	"agentq/internal/version"
)

// HealthCheck handles GET /api/v1/health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// GetStatus handles GET /api/v1/status
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Pending:  len(s.manager.List(queue.StatusPending)),
		LockHeld: s.lock.IsHeld(),
		Version:  version.Version,
	}
	if running := s.manager.List(queue.StatusRunning); len(running) > 0 {
		entry := s.entryToResponse(running[0])
		resp.Running = &entry
	}
	if s.scheduler != nil {
		resp.NextTriggers = s.scheduler.NextRuns()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// EnqueueRun handles POST /api/v1/runs
func (s *Server) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Prompt must not be empty", nil)
		return
	}

	entry, err := s.manager.Enqueue(queue.Payload{
		Prompt:          req.Prompt,
		Channel:         req.Channel,
		SourceSessionID: req.SourceSessionID,
		Trigger:         queue.TriggerManual,
	}, queue.EnqueueOptions{
		DedupeKey: req.DedupeKey,
		AtFront:   req.AtFront,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to enqueue run", err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, s.entryToResponse(entry))
}

// ListQueue handles GET /api/v1/queue
func (s *Server) ListQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", raw), nil)
			return
		}
		statuses = append(statuses, status)
	}

	entries := s.manager.List(statuses...)
	resp := QueueListResponse{
		Entries: make([]EntryResponse, len(entries)),
		Total:   len(entries),
	}
	for i, entry := range entries {
		resp.Entries[i] = s.entryToResponse(entry)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// GetQueueEntry handles GET /api/v1/queue/{id}
func (s *Server) GetQueueEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Queue entry not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.entryToResponse(entry))
}

// RemoveQueueEntry handles DELETE /api/v1/queue/{id}
func (s *Server) RemoveQueueEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Remove(id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Queue entry not found", err)
			return
		}
		s.errorResponse(w, http.StatusConflict, "Entry cannot be removed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Entry removed",
	})
}

// ListRuns handles GET /api/v1/runs
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	runs := s.history.List(limit)
	resp := RunListResponse{
		Runs:  make([]RunResponse, len(runs)),
		Total: len(runs),
	}
	for i, rec := range runs {
		resp.Runs[i] = s.runToResponse(rec, false)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// GetRun handles GET /api/v1/runs/{runId}
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(chi.URLParam(r, "runId"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.runToResponse(rec, true))
}

// StreamRun handles GET /api/v1/runs/{runId}/stream via server-sent events.
func (s *Server) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID := uuid.NewString()
	client := s.streamMgr.Subscribe(runID, clientID)
	defer s.streamMgr.Unsubscribe(runID, clientID)

	for {
		select {
		case <-r.Context().Done():
			return
		case chunk := <-client.Chunks:
			data, _ := json.Marshal(SSEOutputChunk{
				RunID:     chunk.RunID,
				Text:      chunk.Text,
				Timestamp: chunk.Timestamp.Format(time.RFC3339),
				IsError:   chunk.IsError,
			})
			fmt.Fprintf(w, "event: output\ndata: %s\n\n", data)
			flusher.Flush()
		case completion := <-client.Complete:
			data, _ := json.Marshal(SSECompletionEvent{
				RunID:  completion.RunID,
				Status: completion.Status,
				Error:  completion.Error,
			})
			fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
			flusher.Flush()
			return
		}
	}
}

// Helper functions

func (s *Server) entryToResponse(entry queue.Entry) EntryResponse {
	resp := EntryResponse{
		ID:              entry.ID,
		Status:          string(entry.Status),
		Prompt:          entry.Payload.Prompt,
		Channel:         entry.Payload.Channel,
		SourceSessionID: entry.Payload.SourceSessionID,
		Trigger:         entry.Payload.Trigger,
		DedupeKey:       entry.Payload.DedupeKey,
		EnqueuedAt:      entry.EnqueuedAt,
		StartedAt:       entry.StartedAt,
		FinishedAt:      entry.FinishedAt,
	}
	if result := entry.Result; result != nil {
		resp.ExitCode = &result.ExitCode
		resp.DurationSeconds = &result.DurationSeconds
		resp.CostUSD = &result.CostUSD
		resp.Success = &result.Success
		resp.Detail = result.Detail
	}
	return resp
}

func (s *Server) runToResponse(rec history.Record, includeOutput bool) RunResponse {
	resp := RunResponse{
		RunID:           rec.RunID,
		Timestamp:       rec.Timestamp,
		SourceSessionID: rec.SourceSessionID,
		Trigger:         rec.Trigger,
		Channel:         rec.Channel,
		Prompt:          rec.Prompt,
		DurationSeconds: rec.DurationSeconds,
		ExitCode:        rec.ExitCode,
		CostUSD:         rec.CostUSD,
		Success:         rec.Success,
	}
	if includeOutput && rec.ReadableFile != "" {
		if data, err := os.ReadFile(rec.ReadableFile); err == nil {
			resp.Output = string(data)
		}
	}
	return resp
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{
		Error: message,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	s.jsonResponse(w, status, resp)
}
