// Package chat delivers wake and reminder messages to a chat webhook.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookMessenger posts messages as JSON to a chat bridge.
type WebhookMessenger struct {
	url    string
	target string
	client *http.Client
}

type payload struct {
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
	Text    string `json:"text"`
	SentAt  string `json:"sent_at"`
}

func NewWebhookMessenger(url, target string) *WebhookMessenger {
	return &WebhookMessenger{
		url:    url,
		target: target,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends message to channel; an empty channel uses the configured target.
func (m *WebhookMessenger) Notify(ctx context.Context, channel, message string) error {
	if m == nil || m.url == "" {
		return errors.New("chat webhook: empty url")
	}
	body, err := json.Marshal(payload{
		Channel: channel,
		Target:  m.target,
		Text:    message,
		SentAt:  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook: status %d", resp.StatusCode)
	}
	return nil
}

// Func adapts a function to the messenger interface.
type Func func(ctx context.Context, channel, message string) error

func (f Func) Notify(ctx context.Context, channel, message string) error {
	return f(ctx, channel, message)
}
