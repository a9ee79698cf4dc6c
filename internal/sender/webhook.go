package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts reminders to a chat webhook (Slack-style payload). The webhook
// URL embeds its secret, so errors report only the HTTP status, never the URL.
type Webhook struct {
	url    string
	client *http.Client
}

var _ Sender = (*Webhook)(nil)

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Send(ctx context.Context, msg Message) (Outcome, error) {
	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("Reminder: %s at %s", msg.Title, msg.ScheduledAt),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		// The transport error may echo the URL (and its secret); keep it out.
		return Outcome{}, fmt.Errorf("webhook delivery failed: connection error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{}, fmt.Errorf("webhook delivery failed: status %d", resp.StatusCode)
	}
	return Outcome{Delivered: true, Note: "delivered via webhook"}, nil
}
