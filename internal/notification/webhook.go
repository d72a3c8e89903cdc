package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts to a generic HTTP endpoint as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier targeting url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	return postJSON(ctx, w.client, "webhook", w.url, map[string]any{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// postJSON marshals payload and POSTs it, treating any non-2xx status as
// an error. Shared by all HTTP-backed notifiers.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}
