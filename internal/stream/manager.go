// Package stream fans live run output out to SSE subscribers. Output is
// buffered per run so late subscribers replay what they missed.
package stream

import (
	"strings"
	"sync"
	"time"
)

// OutputChunk is one piece of streaming run output.
type OutputChunk struct {
	RunID     string    `json:"run_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

// CompletionEvent signals that a run has finished.
type CompletionEvent struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "completed" or "failed"
	Error  string `json:"error,omitempty"`
}

// Client is one connected subscriber.
type Client struct {
	ID       string
	Chunks   chan OutputChunk
	Complete chan CompletionEvent
	Done     chan struct{}
}

type runStream struct {
	clients    map[string]*Client
	buffer     []OutputChunk
	completed  bool
	completion *CompletionEvent
	mu         sync.RWMutex
}

const bufferLimit = 200

// Manager tracks the streams of all in-flight and recently finished runs.
type Manager struct {
	streams map[string]*runStream
	mu      sync.RWMutex
}

// NewManager creates an empty stream manager.
func NewManager() *Manager {
	return &Manager{streams: make(map[string]*runStream)}
}

func (m *Manager) getOrCreate(runID string) *runStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[runID]; ok {
		return s
	}
	s := &runStream{clients: make(map[string]*Client)}
	m.streams[runID] = s
	return s
}

// Subscribe registers a client for updates on a run. Buffered chunks and a
// completion event, if the run already finished, are replayed immediately.
func (m *Manager) Subscribe(runID, clientID string) *Client {
	s := m.getOrCreate(runID)

	client := &Client{
		ID:       clientID,
		Chunks:   make(chan OutputChunk, bufferLimit),
		Complete: make(chan CompletionEvent, 1),
		Done:     make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range s.buffer {
		select {
		case client.Chunks <- chunk:
		default:
		}
	}
	if s.completed && s.completion != nil {
		select {
		case client.Complete <- *s.completion:
		default:
		}
	}
	s.clients[clientID] = client
	return client
}

// Unsubscribe removes a client and closes its Done channel.
func (m *Manager) Unsubscribe(runID, clientID string) {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if client, ok := s.clients[clientID]; ok {
		close(client.Done)
		delete(s.clients, clientID)
	}
	empty := len(s.clients) == 0 && s.completed
	s.mu.Unlock()

	if empty {
		m.mu.Lock()
		delete(m.streams, runID)
		m.mu.Unlock()
	}
}

// PublishText sends a text chunk to all subscribers of a run.
func (m *Manager) PublishText(runID, text string) {
	m.publish(OutputChunk{RunID: runID, Text: text, Timestamp: time.Now()})
}

// PublishError sends an error chunk to all subscribers of a run.
func (m *Manager) PublishError(runID, text string) {
	m.publish(OutputChunk{RunID: runID, Text: text, Timestamp: time.Now(), IsError: true})
}

func (m *Manager) publish(chunk OutputChunk) {
	s := m.getOrCreate(chunk.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= bufferLimit {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, chunk)
	for _, client := range s.clients {
		select {
		case client.Chunks <- chunk:
		default:
		}
	}
}

// Complete marks a run finished and notifies all subscribers.
func (m *Manager) Complete(runID, status, errMsg string) {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	completion := CompletionEvent{RunID: runID, Status: status, Error: errMsg}
	s.mu.Lock()
	s.completed = true
	s.completion = &completion
	for _, client := range s.clients {
		select {
		case client.Complete <- completion:
		default:
		}
	}
	s.mu.Unlock()
}

// AccumulatedOutput returns the buffered output of a run.
func (m *Manager) AccumulatedOutput(runID string) string {
	m.mu.RLock()
	s, ok := m.streams[runID]
	m.mu.RUnlock()
	if !ok {
		return ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for _, chunk := range s.buffer {
		b.WriteString(chunk.Text)
	}
	return b.String()
}

// CleanupOldStreams drops completed streams with no subscribers and no
// activity inside maxAge.
func (m *Manager) CleanupOldStreams(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for runID, s := range m.streams {
		s.mu.RLock()
		var lastActivity time.Time
		if len(s.buffer) > 0 {
			lastActivity = s.buffer[len(s.buffer)-1].Timestamp
		}
		stale := len(s.clients) == 0 && s.completed && lastActivity.Before(cutoff)
		s.mu.RUnlock()
		if stale {
			delete(m.streams, runID)
		}
	}
}
