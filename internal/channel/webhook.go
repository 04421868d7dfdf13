package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WebhookSender posts outbound messages to a tenant-configured HTTP
// endpoint (a provider bridge or automation hook).
type WebhookSender struct {
	settings WebhookSettings
	client   *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(settings WebhookSettings, client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{settings: settings, client: client}
}

// Name returns the provider name.
func (s *WebhookSender) Name() string { return "webhook" }

type webhookPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

// Send posts the message and returns the endpoint's message id, if any.
func (s *WebhookSender) Send(ctx context.Context, to, body string) (string, error) {
	data, err := json.Marshal(webhookPayload{To: to, Body: body})
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.settings.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.settings.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook send returned status %d", resp.StatusCode)
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		// A provider that answers 2xx without a body still delivered.
		return "", nil
	}
	return wr.ID, nil
}
