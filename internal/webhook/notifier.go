// Package webhook delivers run results to Slack and Discord.
package webhook

import (
	"log/slog"
	"os"

	"agentq/internal/config"
	"agentq/internal/history"
	"agentq/internal/queue"
)

// Notifier fans finished-run notifications out to the configured webhooks.
// Delivery is fire-and-forget; failures are logged and never affect queue
// state.
type Notifier struct {
	cfg     *config.Config
	slack   *Slack
	discord *Discord
	logger  *slog.Logger
}

// NewNotifier builds a notifier for the configured webhook URLs.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:     cfg,
		slack:   NewSlack(),
		discord: NewDiscord(),
		logger:  logger,
	}
}

// NotifyRunFinished sends the run result to the entry's channel, or to every
// configured webhook when no channel is set.
func (n *Notifier) NotifyRunFinished(entry queue.Entry, rec history.Record) {
	slackURL := n.cfg.SlackWebhook
	discordURL := n.cfg.DiscordWebhook
	switch entry.Payload.Channel {
	case "slack":
		discordURL = ""
	case "discord":
		slackURL = ""
	}
	if slackURL == "" && discordURL == "" {
		return
	}

	output := readExcerpt(rec.ReadableFile, 3500)

	go func() {
		if slackURL != "" {
			if err := n.slack.SendResult(slackURL, rec, output); err != nil {
				n.logger.Warn("slack notification failed",
					slog.String("run_id", rec.RunID), slog.Any("error", err))
			}
		}
		if discordURL != "" {
			if err := n.discord.SendResult(discordURL, rec, output); err != nil {
				n.logger.Warn("discord notification failed",
					slog.String("run_id", rec.RunID), slog.Any("error", err))
			}
		}
	}()
}

// readExcerpt loads up to max bytes of the readable artifact.
func readExcerpt(path string, max int) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > max {
		s = s[:max] + "\n\n*... (truncated)*"
	}
	return s
}
