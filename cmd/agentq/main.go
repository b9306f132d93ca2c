package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agentq/internal/api"
	"agentq/internal/config"
	"agentq/internal/history"
	"agentq/internal/logging"
	"agentq/internal/queue"
	"agentq/internal/runlock"
	"agentq/internal/runner"
	"agentq/internal/scheduler"
	"agentq/internal/stream"
	"agentq/internal/tui"
	"agentq/internal/version"
	"agentq/internal/webhook"
	"agentq/internal/worker"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Println(version.Info())
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "daemon":
			if err := runDaemon(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "enqueue":
			if err := runEnqueue(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "status":
			if err := runStatus(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	if err := runTUI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadStores builds the file-backed stores shared by every command.
func loadStores() (*config.Config, *queue.Manager, *history.Log, *runlock.Lock, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, nil, nil, err
	}

	logger := logging.Discard()
	store := queue.NewStore(cfg.QueuePath(), logger)
	manager := queue.NewManager(store, logger)
	hist := history.NewLog(cfg.HistoryPath(), logger)
	lock := runlock.New(cfg.LockPath())
	return cfg, manager, hist, lock, nil
}

func runTUI() error {
	_, manager, hist, _, err := loadStores()
	if err != nil {
		return err
	}
	return tui.Run(manager, hist)
}

func runDaemon() error {
	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	port := daemonCmd.Int("port", 0, "HTTP API port (overrides config)")
	_ = daemonCmd.Parse(os.Args[2:])

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	if *port != 0 {
		cfg.APIPort = *port
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		LogFile: cfg.LogPath(),
	})
	if err != nil {
		return err
	}

	store := queue.NewStore(cfg.QueuePath(), logging.WithComponent(logger, "store"))
	manager := queue.NewManager(store, logging.WithComponent(logger, "queue"))
	hist := history.NewLog(cfg.HistoryPath(), logging.WithComponent(logger, "history"))
	lock := runlock.New(cfg.LockPath())
	streamMgr := stream.NewManager()
	run := runner.New(cfg, streamMgr, logging.WithComponent(logger, "runner"))
	notifier := webhook.NewNotifier(cfg, logging.WithComponent(logger, "webhook"))
	wk := worker.New(cfg, manager, lock, hist, run, notifier, logging.WithComponent(logger, "worker"))

	recovered, err := wk.RecoverOrphans()
	if err != nil {
		return fmt.Errorf("recover orphaned entries: %w", err)
	}
	if recovered > 0 {
		logger.Warn("recovered orphaned entries", "count", recovered)
	}

	sched, err := scheduler.New(cfg, manager, logging.WithComponent(logger, "scheduler"))
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(manager, lock, hist, streamMgr, sched)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: server.Router(),
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Finished stream buffers are only needed by late SSE subscribers.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				streamMgr.CleanupOldStreams(time.Hour)
			}
		}
	}()

	logger.Info("daemon started",
		"pid", os.Getpid(),
		"data_dir", cfg.DataDir,
		"api_port", cfg.APIPort,
		"version", version.Version)

	if err := wk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runEnqueue(args []string) error {
	enqueueCmd := flag.NewFlagSet("enqueue", flag.ExitOnError)
	channel := enqueueCmd.String("channel", "", "notification channel (slack or discord)")
	dedupeKey := enqueueCmd.String("dedupe-key", "", "skip enqueue when a pending entry has the same key")
	front := enqueueCmd.Bool("front", false, "insert ahead of pending entries")
	session := enqueueCmd.String("session", "", "source session id")
	_ = enqueueCmd.Parse(args)

	prompt := strings.TrimSpace(strings.Join(enqueueCmd.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("usage: agentq enqueue [flags] <prompt>")
	}

	_, manager, _, _, err := loadStores()
	if err != nil {
		return err
	}

	entry, err := manager.Enqueue(queue.Payload{
		Prompt:          prompt,
		Channel:         *channel,
		SourceSessionID: *session,
	}, queue.EnqueueOptions{
		DedupeKey: *dedupeKey,
		AtFront:   *front,
	})
	if err != nil {
		return err
	}

	// A running daemon notices the new entry on its next poll.
	fmt.Printf("Enqueued %s\n", entry.ID)
	return nil
}

func runStatus() error {
	_, manager, hist, lock, err := loadStores()
	if err != nil {
		return err
	}

	entries := manager.List()
	counts := make(map[queue.Status]int)
	for _, entry := range entries {
		counts[entry.Status]++
	}

	fmt.Printf("agentq %s\n\n", version.Version)
	fmt.Printf("Lock held:  %v\n", lock.IsHeld())
	for _, status := range queue.AllStatuses() {
		fmt.Printf("%-10s  %d\n", status, counts[status])
	}

	if running := manager.List(queue.StatusRunning); len(running) > 0 {
		entry := running[0]
		fmt.Printf("\nRunning: %s\n  %s\n", entry.ID, firstLine(entry.Payload.Prompt))
	}

	if recent := hist.List(5); len(recent) > 0 {
		fmt.Println("\nRecent runs:")
		for _, rec := range recent {
			result := "fail"
			if rec.Success {
				result = "ok"
			}
			fmt.Printf("  %s  %-4s  %6.1fs  $%.4f\n", rec.RunID, result, rec.DurationSeconds, rec.CostUSD)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func printHelp() {
	fmt.Println(`agentq - Queue and run agent prompts one at a time

Usage:
  agentq                    Launch the interactive TUI
  agentq daemon             Run the worker, scheduler, and HTTP API
  agentq enqueue <prompt>   Add a run to the queue
  agentq status             Show queue and lock status
  agentq version            Show version information
  agentq help               Show this help message

Daemon Options:
  --port                    HTTP API port (overrides config)

Enqueue Options:
  --channel                 Notification channel (slack or discord)
  --dedupe-key              Skip when a pending entry has the same key
  --front                   Insert ahead of pending entries
  --session                 Source session id

Environment Variables:
  AGENTQ_DATA               Override data directory (default: ~/.agentq)
  AGENTQ_CONFIG             Override config path (default: ~/.agentq/config.toml)`)
}
