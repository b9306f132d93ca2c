// Package worker owns all queue entry status transitions. A single control
// loop claims the oldest pending entry, takes the host-wide execution lock,
// runs the agent in a goroutine, and records the outcome in the queue and
// the run history.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agentq/internal/config"
	"agentq/internal/history"
	"agentq/internal/queue"
	"agentq/internal/runlock"
	"agentq/internal/runner"
)

// Runner executes one claimed entry. Satisfied by *runner.Runner.
type Runner interface {
	Run(ctx context.Context, entry queue.Entry) (*runner.Result, error)
}

// Notifier is told about every finished run. May be nil.
type Notifier interface {
	NotifyRunFinished(entry queue.Entry, rec history.Record)
}

// outcome travels from the run goroutine back to the control loop.
type outcome struct {
	entry  queue.Entry
	handle *runlock.Handle
	result *runner.Result
	err    error
}

// Worker drains the queue one entry at a time.
type Worker struct {
	cfg      *config.Config
	manager  *queue.Manager
	store    *queue.Store
	lock     *runlock.Lock
	history  *history.Log
	runner   Runner
	notifier Notifier
	logger   *slog.Logger

	done chan outcome
	busy bool
}

// New wires a worker. notifier may be nil.
func New(cfg *config.Config, manager *queue.Manager, lock *runlock.Lock, hist *history.Log, run Runner, notifier Notifier, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		manager:  manager,
		store:    manager.Store(),
		lock:     lock,
		history:  hist,
		runner:   run,
		notifier: notifier,
		logger:   logger,
		done:     make(chan outcome, 1),
	}
}

// RecoverOrphans marks entries left in running state by a previous process
// as failed. Call it once at startup, before Run. Entries are only touched
// when the execution lock is free; a held lock means another daemon is
// legitimately mid-run.
func (w *Worker) RecoverOrphans() (int, error) {
	if w.lock.IsHeld() {
		return 0, nil
	}

	recovered := 0
	now := time.Now().UTC()
	for _, entry := range w.store.Read() {
		if entry.Status != queue.StatusRunning {
			continue
		}
		_, err := w.store.Update(entry.ID, func(e *queue.Entry) {
			e.Status = queue.StatusFailed
			e.FinishedAt = &now
			e.Result = &queue.Result{
				ExitCode: -1,
				Detail:   "interrupted by daemon shutdown or crash",
			}
		})
		if err != nil {
			return recovered, err
		}
		recovered++
		w.logger.Warn("orphaned running entry marked failed", slog.String("id", entry.ID))
	}
	return recovered, nil
}

// Run drives the control loop until ctx is canceled. An in-flight run is
// not interrupted by shutdown; the next startup's RecoverOrphans settles
// its entry if the process exits before the run completes.
func (w *Worker) Run(ctx context.Context) error {
	poll := time.NewTicker(w.cfg.PollInterval())
	defer poll.Stop()
	cleanup := time.NewTicker(w.cfg.CleanupInterval())
	defer cleanup.Stop()

	w.tryStart()
	for {
		select {
		case <-ctx.Done():
			if w.busy {
				w.logger.Info("shutting down with a run in flight")
			}
			return ctx.Err()
		case <-w.manager.Wake():
			w.tryStart()
		case <-poll.C:
			w.tryStart()
		case o := <-w.done:
			w.busy = false
			w.record(o)
			w.tryStart()
		case <-cleanup.C:
			w.cleanup()
		}
	}
}

// tryStart claims the oldest pending entry and launches it. A held lock
// abandons the cycle; the entry stays pending for the next wake or poll.
func (w *Worker) tryStart() {
	if w.busy {
		return
	}
	pending := w.manager.List(queue.StatusPending)
	if len(pending) == 0 {
		return
	}
	entry := pending[0]

	handle, err := w.lock.TryAcquire()
	if err != nil {
		if errors.Is(err, runlock.ErrAlreadyHeld) {
			w.logger.Debug("execution lock held elsewhere, entry stays pending",
				slog.String("id", entry.ID))
		} else {
			w.logger.Error("execution lock acquisition failed", slog.Any("error", err))
		}
		return
	}

	now := time.Now().UTC()
	claimed, err := w.store.Update(entry.ID, func(e *queue.Entry) {
		e.Status = queue.StatusRunning
		e.StartedAt = &now
	})
	if err != nil {
		// Entry was removed between listing and claiming.
		w.logger.Warn("claim failed", slog.String("id", entry.ID), slog.Any("error", err))
		if rerr := handle.Release(); rerr != nil {
			w.logger.Warn("execution lock release failed", slog.Any("error", rerr))
		}
		return
	}

	w.busy = true
	w.logger.Info("run started",
		slog.String("id", claimed.ID),
		slog.String("trigger", claimed.Payload.Trigger))

	go func() {
		// The run context is deliberately not derived from the loop
		// context: shutdown must not kill a run mid-flight.
		runCtx := context.Background()
		cancel := context.CancelFunc(func() {})
		if timeout := w.cfg.RunTimeout(); timeout > 0 {
			runCtx, cancel = context.WithTimeout(runCtx, timeout)
		}
		defer cancel()

		res, runErr := w.runner.Run(runCtx, claimed)
		w.done <- outcome{entry: claimed, handle: handle, result: res, err: runErr}
	}()
}

// record writes the history record and the terminal queue state, then
// releases the execution lock. History append failure is logged but does
// not block the state transition.
func (w *Worker) record(o outcome) {
	defer func() {
		if err := o.handle.Release(); err != nil {
			w.logger.Warn("execution lock release failed", slog.Any("error", err))
		}
	}()

	res := o.result
	if o.err != nil {
		w.logger.Error("run failed to execute",
			slog.String("id", o.entry.ID), slog.Any("error", o.err))
		res = &runner.Result{ExitCode: -1, Detail: o.err.Error()}
	}

	now := time.Now().UTC()
	rec := history.Record{
		RunID:           o.entry.ID,
		Timestamp:       now,
		SourceSessionID: o.entry.Payload.SourceSessionID,
		Trigger:         o.entry.Payload.Trigger,
		Channel:         o.entry.Payload.Channel,
		Prompt:          o.entry.Payload.Prompt,
		DurationSeconds: res.Duration.Seconds(),
		ExitCode:        res.ExitCode,
		CostUSD:         res.CostUSD,
		Success:         res.Success,
		PromptFile:      res.PromptFile,
		OutputFile:      res.OutputFile,
		ReadableFile:    res.ReadableFile,
	}
	if err := w.history.Append(rec); err != nil {
		w.logger.Error("history append failed",
			slog.String("id", o.entry.ID), slog.Any("error", err))
	}

	status := queue.StatusFailed
	if res.Success {
		status = queue.StatusCompleted
	}
	updated, err := w.store.Update(o.entry.ID, func(e *queue.Entry) {
		e.Status = status
		e.FinishedAt = &now
		e.Result = &queue.Result{
			ExitCode:        res.ExitCode,
			DurationSeconds: res.Duration.Seconds(),
			CostUSD:         res.CostUSD,
			Success:         res.Success,
			Detail:          res.Detail,
		}
	})
	if err != nil {
		w.logger.Error("terminal state update failed",
			slog.String("id", o.entry.ID), slog.Any("error", err))
		updated = o.entry
	}

	w.logger.Info("run finished",
		slog.String("id", o.entry.ID),
		slog.String("status", string(status)),
		slog.Float64("duration_seconds", res.Duration.Seconds()),
		slog.Float64("cost_usd", res.CostUSD))

	if w.notifier != nil {
		w.notifier.NotifyRunFinished(updated, rec)
	}
}

// cleanup compacts terminal entries older than the retention window out of
// the queue log. Their history records are untouched.
func (w *Worker) cleanup() {
	retention := w.cfg.Retention()
	if retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-retention)
	err := w.store.Cleanup(func(e queue.Entry) bool {
		return e.Terminal() && e.FinishedAt != nil && e.FinishedAt.Before(cutoff)
	})
	if err != nil {
		w.logger.Error("queue cleanup failed", slog.Any("error", err))
	}
}
