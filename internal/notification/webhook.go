package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opbridge/opbridge/internal/config"
)

// WebhookNotifier POSTs each alert as JSON to a configured URL. A shared
// secret, when set, is passed in a header so the receiver can authenticate
// the caller.
type WebhookNotifier struct {
	env        *config.WebhookEnv
	httpClient *http.Client
}

func NewWebhookNotifier(env *config.WebhookEnv) *WebhookNotifier {
	return &WebhookNotifier{
		env:        env,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Configured() bool { return n.env.URL != "" }

func (n *WebhookNotifier) Send(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.env.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.env.Secret != "" {
		req.Header.Set("X-Webhook-Secret", n.env.Secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
