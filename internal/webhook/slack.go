package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agentq/internal/history"
)

// Slack posts run results to a Slack incoming webhook.
type Slack struct {
	client *http.Client
}

// NewSlack creates a Slack webhook sender.
func NewSlack() *Slack {
	return &Slack{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackBlock is a Slack Block Kit block.
type SlackBlock struct {
	Type     string         `json:"type"`
	Text     *SlackTextObj  `json:"text,omitempty"`
	Fields   []SlackTextObj `json:"fields,omitempty"`
	Elements []SlackElement `json:"elements,omitempty"`
}

// SlackTextObj is a Slack text object.
type SlackTextObj struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// SlackElement is an element of a context block.
type SlackElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackAttachment carries blocks with a colored sidebar.
type SlackAttachment struct {
	Color  string       `json:"color"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackPayload is the webhook request body.
type SlackPayload struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SendResult posts one finished run to Slack.
func (s *Slack) SendResult(webhookURL string, rec history.Record, output string) error {
	color := "#FF0000"
	statusEmoji := ":x:"
	statusText := "Failed"
	if rec.Success {
		color = "#00FF00"
		statusEmoji = ":white_check_mark:"
		statusText = "Completed"
	}

	output = toSlackMarkdown(output)
	if len(output) > 2500 {
		output = output[:2500] + "\n... _(truncated)_"
	}
	if output == "" {
		output = "_No output_"
	}

	duration := (time.Duration(rec.DurationSeconds * float64(time.Second))).Round(time.Second)
	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObj{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s Run %s", statusEmoji, rec.RunID),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []SlackTextObj{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", statusText)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", duration)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Cost:*\n$%.4f", rec.CostUSD)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Trigger:*\n%s", rec.Trigger)},
			},
		},
		{
			Type: "divider",
		},
		{
			Type: "section",
			Text: &SlackTextObj{Type: "mrkdwn", Text: output},
		},
	}

	if !rec.Success && rec.ExitCode != 0 {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackTextObj{
				Type: "mrkdwn",
				Text: fmt.Sprintf(":warning: *Exit code:* `%d`", rec.ExitCode),
			},
		})
	}

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []SlackElement{
			{Type: "mrkdwn", Text: "agentq"},
		},
	})

	payload := SlackPayload{
		Attachments: []SlackAttachment{{Color: color, Blocks: blocks}},
	}
	return s.send(webhookURL, payload)
}

// toSlackMarkdown rewrites common markdown into Slack mrkdwn. Slack bolds
// with single asterisks and has no header syntax.
func toSlackMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
		}
		if inCodeBlock {
			continue
		}
		for strings.Contains(lines[i], "**") {
			lines[i] = strings.Replace(lines[i], "**", "*", 2)
		}
		if trimmed := strings.TrimSpace(lines[i]); strings.HasPrefix(trimmed, "#") {
			lines[i] = "*" + strings.TrimLeft(trimmed, "# ") + "*"
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Slack) send(webhookURL string, payload SlackPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
