package queue

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrNotFound is returned when an entry id is not present in the log.
var ErrNotFound = errors.New("queue entry not found")

// Store persists queue entries as a JSON-lines log. Appends are cheap and
// sequential; status updates rewrite the whole log through an atomic
// temp-file-plus-rename swap, which doubles as compaction. Writers are
// serialized twice over: an in-process mutex orders goroutines, and an OS
// advisory lock on a sibling lock file orders processes, since the CLI
// appends to the same log a running daemon rewrites. The execution lock is
// a separate concern handled by the runlock package.
type Store struct {
	path   string
	mu     sync.Mutex
	flk    *flock.Flock
	logger *slog.Logger
}

// NewStore creates a store backed by the log file at path. The file is
// created lazily on first append.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		flk:    flock.New(path + ".lock"),
		logger: logger,
	}
}

// lockLog takes the cross-process log lock. Callers must already hold s.mu,
// which makes the shared flock descriptor safe to reuse. The lock blocks
// rather than failing; log operations are short.
func (s *Store) lockLog() (func(), error) {
	if err := s.flk.Lock(); err != nil {
		return nil, fmt.Errorf("lock queue log %s: %w", s.flk.Path(), err)
	}
	return func() {
		if err := s.flk.Unlock(); err != nil {
			s.logger.Warn("unlock queue log failed",
				slog.String("path", s.flk.Path()), slog.Any("error", err))
		}
	}, nil
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Read parses the on-disk log into entries in insertion order. A missing or
// unreadable log yields an empty slice; malformed lines are skipped with a
// warning so one corrupt record never takes down the queue.
func (s *Store) Read() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		s.logger.Warn("queue log read without cross-process lock", slog.Any("error", err))
		return s.readLocked()
	}
	defer unlock()
	return s.readLocked()
}

func (s *Store) readLocked() []Entry {
	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("queue log unreadable", slog.String("path", s.path), slog.Any("error", err))
		}
		return nil
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn("skipping malformed queue record",
				slog.String("path", s.path), slog.Int("line", line), slog.Any("error", err))
			continue
		}
		if entry.ID == "" {
			s.logger.Warn("skipping queue record without id",
				slog.String("path", s.path), slog.Int("line", line))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("queue log truncated", slog.String("path", s.path), slog.Any("error", err))
	}
	return entries
}

// Append durably adds one entry without rewriting prior entries.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open queue log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(entry); err != nil {
		return fmt.Errorf("append queue entry %s: %w", entry.ID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync queue log: %w", err)
	}
	return nil
}

// Write atomically replaces the entire log with the given entries. A crash
// mid-write leaves the previous log intact; readers never observe a
// truncated or interleaved file.
func (s *Store) Write(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return err
	}
	defer unlock()
	return s.writeLocked(entries)
}

func (s *Store) writeLocked(entries []Entry) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			tmp.Close()
			return fmt.Errorf("write queue entry %s: %w", entry.ID, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync queue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queue temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace queue log: %w", err)
	}
	return nil
}

// Update applies mutate to the entry matching id and rewrites the log.
// Returns ErrNotFound when no entry carries the id.
func (s *Store) Update(id string, mutate func(*Entry)) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	entries := s.readLocked()
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		mutate(&entries[i])
		if err := s.writeLocked(entries); err != nil {
			return Entry{}, err
		}
		return entries[i], nil
	}
	return Entry{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
}

// Remove deletes the entry matching id. A non-nil check runs against the
// entry before removal and can veto it; the read, the check, and the
// rewrite happen under a single lock hold so no other writer can slip a
// state change in between.
func (s *Store) Remove(id string, check func(Entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return err
	}
	defer unlock()

	entries := s.readLocked()
	for i, entry := range entries {
		if entry.ID != id {
			continue
		}
		if check != nil {
			if err := check(entry); err != nil {
				return err
			}
		}
		return s.writeLocked(append(entries[:i:i], entries[i+1:]...))
	}
	return fmt.Errorf("remove %s: %w", id, ErrNotFound)
}

// Prepend atomically inserts an entry ahead of the current log contents.
func (s *Store) Prepend(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return err
	}
	defer unlock()

	entries := s.readLocked()
	return s.writeLocked(append([]Entry{entry}, entries...))
}

// Cleanup rewrites the log without the entries matching remove.
func (s *Store) Cleanup(remove func(Entry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockLog()
	if err != nil {
		return err
	}
	defer unlock()

	entries := s.readLocked()
	kept := entries[:0]
	removed := 0
	for _, entry := range entries {
		if remove(entry) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	if removed == 0 {
		return nil
	}
	if err := s.writeLocked(kept); err != nil {
		return err
	}
	s.logger.Debug("queue log compacted", slog.Int("removed", removed), slog.Int("kept", len(kept)))
	return nil
}
