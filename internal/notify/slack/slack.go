// Package slack sends triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/intake/internal/triage"
)

const (
	maxBodyLen  = 2000
	httpTimeout = 10 * time.Second
)

// Notifier posts high-urgency triage suggestions to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts a pending triage action to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, msg *triage.Message, action *triage.TriageAction) error {
	if n.webhookURL == "" {
		return nil
	}

	payload := buildMessage(msg, action)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(msg *triage.Message, action *triage.TriageAction) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(msg, action),
			{"type": "divider"},
			fieldsBlock(msg, action),
			{"type": "divider"},
			bodyBlock(msg),
			{"type": "divider"},
			contextBlock(action),
		},
	}
}

func headerBlock(msg *triage.Message, action *triage.TriageAction) map[string]any {
	text := fmt.Sprintf("%s Triage suggested: %s", urgencyEmoji(action.Urgency), msg.Subject)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(msg *triage.Message, action *triage.TriageAction) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Urgency:* %s", action.Urgency),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Route:* %s", action.Route),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Channel:* %s", msg.Channel),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", action.Status),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func bodyBlock(msg *triage.Message) map[string]any {
	text := truncate(msg.Body, maxBodyLen)
	if text == "" {
		text = "_No message body._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Message*\n\n%s", text),
		},
	}
}

func contextBlock(action *triage.TriageAction) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("intake • action %s • %s", action.ID, action.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func urgencyEmoji(u triage.Urgency) string {
	switch u {
	case triage.UrgencyHigh:
		return "\U0001f534" // red circle
	case triage.UrgencyMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
