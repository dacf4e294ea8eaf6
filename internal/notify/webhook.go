package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// WebhookSender posts the raw AlertEvent JSON to a URL, typically a push
// notification bridge.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. A non-empty secret is sent as
// the X-Webhook-Secret header.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts ev as JSON.
func (w *WebhookSender) Send(ctx context.Context, ev domain.AlertEvent) error {
	var h http.Header
	if w.secret != "" {
		h = http.Header{"X-Webhook-Secret": []string{w.secret}}
	}
	return postJSON(ctx, w.client, "webhook", w.url, ev, h)
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string { return "webhook" }
