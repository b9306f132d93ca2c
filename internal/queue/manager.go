package queue

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the producer-facing entry point to the queue. It assigns
// identity and default metadata to new entries and delegates persistence to
// the Store; it keeps no entry state of its own between calls.
type Manager struct {
	store  *Store
	logger *slog.Logger

	mu   sync.Mutex // serializes dedupe-check-then-append
	wake chan struct{}
}

// EnqueueOptions tune a single Enqueue call.
type EnqueueOptions struct {
	// DedupeKey skips the enqueue when a pending entry already carries the
	// same key; the existing entry is returned instead.
	DedupeKey string
	// AtFront inserts the entry ahead of the current pending entries.
	AtFront bool
}

// NewManager wraps a Store with the producer API.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Store exposes the underlying entry store for the worker, which owns all
// status transitions.
func (m *Manager) Store() *Store { return m.store }

// Wake returns the channel signaled after every successful enqueue so the
// worker can start a cycle without waiting for its poll interval.
func (m *Manager) Wake() <-chan struct{} { return m.wake }

// Enqueue appends a new pending entry and returns it. With a dedupe key,
// an already-pending entry with the same key is returned unchanged.
func (m *Manager) Enqueue(payload Payload, opts EnqueueOptions) (Entry, error) {
	if strings.TrimSpace(payload.Prompt) == "" {
		return Entry{}, fmt.Errorf("enqueue: prompt must not be empty")
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerManual
	}
	if opts.DedupeKey != "" {
		payload.DedupeKey = opts.DedupeKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.store.Read()
	if payload.DedupeKey != "" {
		for _, existing := range entries {
			if existing.Status == StatusPending && existing.Payload.DedupeKey == payload.DedupeKey {
				m.logger.Debug("enqueue deduplicated",
					slog.String("id", existing.ID), slog.String("dedupe_key", payload.DedupeKey))
				return existing, nil
			}
		}
	}

	entry := Entry{
		ID:         newEntryID(time.Now(), entries),
		Status:     StatusPending,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	if opts.AtFront {
		if err := m.store.Prepend(entry); err != nil {
			return Entry{}, err
		}
	} else {
		if err := m.store.Append(entry); err != nil {
			return Entry{}, err
		}
	}

	m.signalWake()
	m.logger.Info("run enqueued",
		slog.String("id", entry.ID),
		slog.String("trigger", entry.Payload.Trigger),
		slog.String("channel", entry.Payload.Channel))
	return entry, nil
}

// List returns entries in log order, optionally filtered by status.
func (m *Manager) List(statuses ...Status) []Entry {
	entries := m.store.Read()
	if len(statuses) == 0 {
		return entries
	}
	wanted := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if _, ok := wanted[entry.Status]; ok {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Get returns the entry with the given id.
func (m *Manager) Get(id string) (Entry, error) {
	for _, entry := range m.store.Read() {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
}

// Remove deletes a still-pending entry. Running and terminal entries cannot
// be removed here; terminal entries age out through the worker's cleanup.
func (m *Manager) Remove(id string) error {
	return m.store.Remove(id, func(entry Entry) error {
		if entry.Status != StatusPending {
			return fmt.Errorf("remove %s: entry is %s, only pending entries can be removed", id, entry.Status)
		}
		return nil
	})
}

func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// newEntryID builds a timestamp-prefixed id so lexicographic order matches
// enqueue order, with a random suffix collision-checked against the current
// log.
func newEntryID(now time.Time, existing []Entry) string {
	taken := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		taken[entry.ID] = struct{}{}
	}
	for {
		id := now.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}
