package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers notifications to webhooks. Each delivery is a single
// attempt.
type Notifier struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNotifier creates a notifier. A nil client gets a 30 second timeout.
func NewNotifier(client *http.Client, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{httpClient: client, logger: logger}
}

// SendWebhook sends a notification via HTTP POST
func (n *Notifier) SendWebhook(ctx context.Context, url string, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Drumbeat-Event", notification.Event.Type)
	req.Header.Set("X-Drumbeat-Subscription", notification.SubscriptionID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected notification",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return &WebhookError{URL: url, StatusCode: resp.StatusCode}
	}

	n.logger.Debug("webhook delivered", zap.String("url", url), zap.String("event", notification.Event.Type))
	return nil
}

// WebhookError represents a webhook delivery failure
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook %s answered %d", e.URL, e.StatusCode)
}
