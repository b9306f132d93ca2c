// Package runner invokes the external agent process for one queue entry and
// reports how it went. It never touches queue state; the worker owns all
// transitions.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentq/internal/config"
	"agentq/internal/queue"
	"agentq/internal/stream"
)

// Result is the outcome of one external invocation. A non-zero exit code is
// reported here, not as an error; errors are reserved for spawn and
// artifact failures.
type Result struct {
	ExitCode     int
	Duration     time.Duration
	CostUSD      float64
	Success      bool
	Detail       string
	PromptFile   string
	OutputFile   string
	ReadableFile string
}

// Runner drives the agent CLI for queue entries.
type Runner struct {
	cfg     *config.Config
	streams *stream.Manager
	logger  *slog.Logger
}

// New creates a runner. streams may be nil when no live output is needed.
func New(cfg *config.Config, streams *stream.Manager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, streams: streams, logger: logger}
}

// streamEvent is one line of the agent CLI's stream-json output.
type streamEvent struct {
	Type  string `json:"type"`
	Event struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta,omitempty"`
	} `json:"event,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	ResultText   string  `json:"result,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// Run executes the agent process for the entry, streaming output as it
// arrives and writing the prompt, raw output, and readable artifacts under
// the runs directory.
func (r *Runner) Run(ctx context.Context, entry queue.Entry) (*Result, error) {
	start := time.Now()

	runDir := filepath.Join(r.cfg.RunsDir(), entry.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	promptFile := filepath.Join(runDir, "prompt.txt")
	if err := os.WriteFile(promptFile, []byte(entry.Payload.Prompt), 0o644); err != nil {
		return nil, fmt.Errorf("write prompt artifact: %w", err)
	}

	// -p enables print mode (non-interactive); stream-json emits one JSON
	// event per line so output can be relayed while the run progresses.
	args := []string{"-p", "--dangerously-skip-permissions", "--output-format", "stream-json"}
	args = append(args, r.cfg.AgentArgs...)
	args = append(args, entry.Payload.Prompt)

	cmd := exec.CommandContext(ctx, r.cfg.AgentBinary, args...)
	cmd.Dir = r.cfg.WorkingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent process %s: %w", r.cfg.AgentBinary, err)
	}

	var stderrOutput strings.Builder
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrOutput.WriteString(scanner.Text())
			stderrOutput.WriteString("\n")
		}
	}()

	outputFile := filepath.Join(runDir, "output.json")
	rawOut, err := os.Create(outputFile)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("create output artifact: %w", err)
	}

	var readable strings.Builder
	var costUSD float64
	var isError bool
	var resultText string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Fprintln(rawOut, line)

		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		switch event.Type {
		case "stream_event":
			if event.Event.Type == "content_block_delta" && event.Event.Delta.Type == "text_delta" {
				readable.WriteString(event.Event.Delta.Text)
				if r.streams != nil {
					r.streams.PublishText(entry.ID, event.Event.Delta.Text)
				}
			}
		case "result":
			costUSD = event.TotalCostUSD
			isError = event.IsError
			resultText = event.ResultText
		}
	}
	_ = rawOut.Close()

	cmdErr := cmd.Wait()
	wg.Wait()
	duration := time.Since(start)

	if readable.Len() == 0 && resultText != "" {
		readable.WriteString(resultText)
	}
	readableFile := filepath.Join(runDir, "output.md")
	if err := os.WriteFile(readableFile, []byte(readable.String()), 0o644); err != nil {
		r.logger.Warn("write readable artifact failed",
			slog.String("id", entry.ID), slog.Any("error", err))
		readableFile = ""
	}

	res := &Result{
		Duration:     duration,
		CostUSD:      costUSD,
		PromptFile:   promptFile,
		OutputFile:   outputFile,
		ReadableFile: readableFile,
	}

	switch {
	case cmdErr == nil && !isError:
		res.Success = true
	case cmdErr == nil:
		res.Detail = firstNonEmpty(resultText, "agent reported an error result")
	default:
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(cmdErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		detail := cmdErr.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("run timed out after %s", r.cfg.RunTimeout())
		}
		if stderrOutput.Len() > 0 {
			detail = detail + "\n" + truncate(stderrOutput.String(), 2000)
		}
		res.Detail = detail
	}

	if r.streams != nil {
		if res.Success {
			r.streams.Complete(entry.ID, "completed", "")
		} else {
			r.streams.Complete(entry.ID, "failed", res.Detail)
		}
	}

	return res, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
