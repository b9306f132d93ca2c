package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentq/internal/api"
	"agentq/internal/history"
	"agentq/internal/logging"
	"agentq/internal/queue"
	"agentq/internal/runlock"
	"agentq/internal/stream"
)

type fixture struct {
	manager *queue.Manager
	hist    *history.Log
	server  *httptest.Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	store := queue.NewStore(filepath.Join(dir, "queue.jsonl"), logging.Discard())
	manager := queue.NewManager(store, logging.Discard())
	hist := history.NewLog(filepath.Join(dir, "runs.jsonl"), logging.Discard())
	lock := runlock.New(filepath.Join(dir, "run.lock"))

	srv := api.NewServer(manager, lock, hist, stream.NewManager(), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return fixture{manager: manager, hist: hist, server: ts}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[api.HealthResponse](t, resp)
	if body.Status != "ok" {
		t.Fatalf("unexpected health body: %#v", body)
	}
}

func TestEnqueueRun(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/api/v1/runs", "application/json",
		strings.NewReader(`{"prompt":"check the build","channel":"slack"}`))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	body := decode[api.EntryResponse](t, resp)
	if body.ID == "" || body.Status != "pending" || body.Channel != "slack" {
		t.Fatalf("unexpected entry response: %#v", body)
	}

	if got := len(f.manager.List(queue.StatusPending)); got != 1 {
		t.Fatalf("expected 1 pending entry, got %d", got)
	}
}

func TestEnqueueRunRejectsEmptyPrompt(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.server.URL+"/api/v1/runs", "application/json",
		strings.NewReader(`{"prompt":"  "}`))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListQueue(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Enqueue(queue.Payload{Prompt: "one"}, queue.EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	resp, err := http.Get(f.server.URL + "/api/v1/queue")
	if err != nil {
		t.Fatalf("GET queue: %v", err)
	}
	body := decode[api.QueueListResponse](t, resp)
	if body.Total != 1 || len(body.Entries) != 1 {
		t.Fatalf("unexpected queue response: %#v", body)
	}
}

func TestListQueueRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/queue?status=bogus")
	if err != nil {
		t.Fatalf("GET queue: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetQueueEntryNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/queue/missing")
	if err != nil {
		t.Fatalf("GET queue entry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRemoveQueueEntry(t *testing.T) {
	f := newFixture(t)
	entry, err := f.manager.Enqueue(queue.Payload{Prompt: "bye"}, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.server.URL+"/api/v1/queue/"+entry.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE queue entry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := len(f.manager.List()); got != 0 {
		t.Fatalf("expected empty queue, got %d entries", got)
	}
}

func TestRemoveRunningEntryConflicts(t *testing.T) {
	f := newFixture(t)
	entry, err := f.manager.Enqueue(queue.Payload{Prompt: "busy"}, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := f.manager.Store().Update(entry.ID, func(e *queue.Entry) {
		e.Status = queue.StatusRunning
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.server.URL+"/api/v1/queue/"+entry.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE queue entry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"r1", "r2"} {
		if err := f.hist.Append(history.Record{
			RunID:     id,
			Timestamp: time.Now().UTC(),
			Trigger:   "manual",
			Prompt:    "p",
			Success:   true,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	resp, err := http.Get(f.server.URL + "/api/v1/runs?limit=1")
	if err != nil {
		t.Fatalf("GET runs: %v", err)
	}
	body := decode[api.RunListResponse](t, resp)
	if body.Total != 1 || body.Runs[0].RunID != "r2" {
		t.Fatalf("unexpected runs response: %#v", body)
	}
}

func TestGetRunNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/runs/missing")
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Enqueue(queue.Payload{Prompt: "waiting"}, queue.EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	resp, err := http.Get(f.server.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	body := decode[api.StatusResponse](t, resp)
	if body.Pending != 1 {
		t.Fatalf("expected 1 pending, got %d", body.Pending)
	}
	if body.LockHeld {
		t.Fatal("expected lock to be free")
	}
}
