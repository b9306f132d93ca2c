package stream_test

import (
	"testing"
	"time"

	"agentq/internal/stream"
)

func TestSubscribeReceivesPublishedChunks(t *testing.T) {
	m := stream.NewManager()
	client := m.Subscribe("run-1", "client-1")
	defer m.Unsubscribe("run-1", "client-1")

	m.PublishText("run-1", "hello")

	select {
	case chunk := <-client.Chunks:
		if chunk.Text != "hello" || chunk.IsError {
			t.Fatalf("unexpected chunk: %#v", chunk)
		}
	default:
		t.Fatal("expected a buffered chunk")
	}
}

func TestLateSubscriberReplaysBuffer(t *testing.T) {
	m := stream.NewManager()

	m.PublishText("run-1", "first")
	m.PublishText("run-1", "second")
	m.Complete("run-1", "completed", "")

	client := m.Subscribe("run-1", "late")
	defer m.Unsubscribe("run-1", "late")

	var texts []string
	for i := 0; i < 2; i++ {
		select {
		case chunk := <-client.Chunks:
			texts = append(texts, chunk.Text)
		default:
			t.Fatalf("expected 2 replayed chunks, got %d", len(texts))
		}
	}
	if texts[0] != "first" || texts[1] != "second" {
		t.Fatalf("unexpected replay order: %v", texts)
	}

	select {
	case completion := <-client.Complete:
		if completion.Status != "completed" {
			t.Fatalf("unexpected completion: %#v", completion)
		}
	default:
		t.Fatal("expected completion replay for finished run")
	}
}

func TestAccumulatedOutput(t *testing.T) {
	m := stream.NewManager()
	m.PublishText("run-1", "a")
	m.PublishText("run-1", "b")

	if got := m.AccumulatedOutput("run-1"); got != "ab" {
		t.Fatalf("expected %q, got %q", "ab", got)
	}
	if got := m.AccumulatedOutput("other"); got != "" {
		t.Fatalf("expected empty output for unknown run, got %q", got)
	}
}

func TestCleanupOldStreams(t *testing.T) {
	m := stream.NewManager()
	m.PublishText("run-1", "old")
	m.Complete("run-1", "completed", "")

	time.Sleep(5 * time.Millisecond)
	m.CleanupOldStreams(0)

	if got := m.AccumulatedOutput("run-1"); got != "" {
		t.Fatalf("expected stream to be dropped, got %q", got)
	}
}
