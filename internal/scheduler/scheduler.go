// Package scheduler enqueues configured triggers on their cron schedules.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentq/internal/config"
	"agentq/internal/queue"
)

// Scheduler turns config triggers into queue entries. Triggers are static
// for the life of the daemon; a config change requires a restart.
type Scheduler struct {
	cron    *cron.Cron
	manager *queue.Manager
	logger  *slog.Logger
	jobs    map[string]cron.EntryID
	mu      sync.RWMutex
	running bool
}

// New builds a scheduler over the configured triggers without starting it.
func New(cfg *config.Config, manager *queue.Manager, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		manager: manager,
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
	}
	for _, trigger := range cfg.Triggers {
		if err := s.add(trigger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(trigger config.Trigger) error {
	payload := queue.Payload{
		Prompt:  trigger.Prompt,
		Channel: trigger.Channel,
		Trigger: queue.TriggerScheduled,
	}
	// One pending entry per trigger at a time; a firing while the previous
	// one still waits is a no-op.
	dedupeKey := "trigger:" + trigger.Name
	name := trigger.Name

	entryID, err := s.cron.AddFunc(trigger.Cron, func() {
		entry, err := s.manager.Enqueue(payload, queue.EnqueueOptions{DedupeKey: dedupeKey})
		if err != nil {
			s.logger.Error("trigger enqueue failed",
				slog.String("trigger", name), slog.Any("error", err))
			return
		}
		s.logger.Info("trigger fired",
			slog.String("trigger", name), slog.String("id", entry.ID))
	})
	if err != nil {
		return fmt.Errorf("schedule trigger %q: %w", trigger.Name, err)
	}

	s.jobs[trigger.Name] = entryID
	return nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", slog.Int("triggers", len(s.jobs)))
}

// Stop halts the scheduler and waits for in-flight trigger callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

// NextRuns returns the next fire time per trigger name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]time.Time, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Next.IsZero() {
			result[name] = entry.Next
		}
	}
	return result
}
