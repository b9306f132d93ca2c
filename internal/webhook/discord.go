package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agentq/internal/history"
)

// Discord posts run results to a Discord webhook.
type Discord struct {
	client *http.Client
}

// NewDiscord creates a Discord webhook sender.
func NewDiscord() *Discord {
	return &Discord{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// DiscordEmbed is a Discord embed object.
type DiscordEmbed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is one field of a Discord embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter is the footer of a Discord embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// DiscordPayload is the webhook request body.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// SendResult posts one finished run to Discord.
func (d *Discord) SendResult(webhookURL string, rec history.Record, output string) error {
	color := 0xFF0000
	statusEmoji := "❌"
	statusText := "failed"
	if rec.Success {
		color = 0x00FF00
		statusEmoji = "✅"
		statusText = "completed"
	}

	// Discord caps embed descriptions at 4096 characters.
	if len(output) > 3500 {
		output = output[:3500] + "\n\n*... (truncated)*"
	}
	if output == "" {
		output = "*No output*"
	}

	duration := (time.Duration(rec.DurationSeconds * float64(time.Second))).Round(time.Second)
	embed := DiscordEmbed{
		Title:       fmt.Sprintf("%s Run %s", statusEmoji, rec.RunID),
		Description: output,
		Color:       color,
		Fields: []EmbedField{
			{Name: "Status", Value: statusText, Inline: true},
			{Name: "Duration", Value: duration.String(), Inline: true},
			{Name: "Cost", Value: fmt.Sprintf("$%.4f", rec.CostUSD), Inline: true},
			{Name: "Trigger", Value: rec.Trigger, Inline: true},
		},
		Timestamp: rec.Timestamp.Format(time.RFC3339),
		Footer:    &EmbedFooter{Text: "agentq"},
	}

	if !rec.Success && rec.ExitCode != 0 {
		embed.Fields = append(embed.Fields, EmbedField{
			Name:   "⚠️ Exit Code",
			Value:  fmt.Sprintf("`%d`", rec.ExitCode),
			Inline: true,
		})
	}

	return d.send(webhookURL, DiscordPayload{Embeds: []DiscordEmbed{embed}})
}

func (d *Discord) send(webhookURL string, payload DiscordPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
