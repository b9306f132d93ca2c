package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentq/internal/history"
)

func testRecord(success bool) history.Record {
	return history.Record{
		RunID:           "20260102T030405-abcd1234",
		Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Trigger:         "manual",
		Prompt:          "do the thing",
		DurationSeconds: 12.5,
		ExitCode:        0,
		CostUSD:         0.1234,
		Success:         success,
	}
}

func TestSlackSendResult(t *testing.T) {
	var received SlackPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := NewSlack().SendResult(ts.URL, testRecord(true), "**done**"); err != nil {
		t.Fatalf("SendResult failed: %v", err)
	}

	if len(received.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.Color != "#00FF00" {
		t.Fatalf("expected success color, got %q", att.Color)
	}
	if len(att.Blocks) == 0 || att.Blocks[0].Type != "header" {
		t.Fatalf("expected header block first, got %#v", att.Blocks)
	}
}

func TestSlackSendResultRejectsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	if err := NewSlack().SendResult(ts.URL, testRecord(true), ""); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestDiscordSendResult(t *testing.T) {
	var received DiscordPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	rec := testRecord(false)
	rec.ExitCode = 2
	if err := NewDiscord().SendResult(ts.URL, rec, "boom"); err != nil {
		t.Fatalf("SendResult failed: %v", err)
	}

	if len(received.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(received.Embeds))
	}
	embed := received.Embeds[0]
	if embed.Color != 0xFF0000 {
		t.Fatalf("expected failure color, got %#x", embed.Color)
	}
	found := false
	for _, field := range embed.Fields {
		if strings.Contains(field.Name, "Exit Code") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exit code field on failure, got %#v", embed.Fields)
	}
}

func TestToSlackMarkdown(t *testing.T) {
	in := "# Heading\n**bold** text\n```\n**not touched**\n```"
	out := toSlackMarkdown(in)

	if !strings.Contains(out, "*Heading*") {
		t.Fatalf("expected heading converted to bold, got %q", out)
	}
	if !strings.Contains(out, "*bold* text") {
		t.Fatalf("expected double asterisks collapsed, got %q", out)
	}
	if !strings.Contains(out, "**not touched**") {
		t.Fatalf("expected code block left alone, got %q", out)
	}
}
