package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier sends finding alerts via webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookOption configures the notifier.
type WebhookOption func(*WebhookNotifier)

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(timeout time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if timeout > 0 {
			n.client.Timeout = timeout
		}
	}
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends a finding alert to webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	content := formatAlertMessage(msg)
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook notifier: non-2xx")
	}
	return nil
}

func formatAlertMessage(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("[Battery Insight]\n")
	if msg.SiteID != "" {
		fmt.Fprintf(&b, "Site: %s\n", msg.SiteID)
	}
	if msg.Severity != "" {
		fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(msg.Severity))
	}
	if msg.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", msg.Category)
	}
	if msg.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", msg.Title)
	}
	if msg.Description != "" {
		fmt.Fprintf(&b, "Detail: %s\n", msg.Description)
	}
	if msg.Recommendation != "" {
		fmt.Fprintf(&b, "Suggested: %s\n", msg.Recommendation)
	}
	if msg.EstimatedValueGBP > 0 {
		fmt.Fprintf(&b, "Value at risk: £%.0f\n", msg.EstimatedValueGBP)
	}
	if msg.FindingID != "" {
		fmt.Fprintf(&b, "Finding: %s\n", msg.FindingID)
	}
	return strings.TrimSpace(b.String())
}
