package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Embed colours per decision.
const (
	colourBuy   = 0x2ecc71
	colourWatch = 0xf1c40f
	colourOther = 0x95a5a6
)

// DiscordSender delivers alerts as a webhook embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, ev domain.AlertEvent) error {
	colour := colourOther
	switch ev.Decision {
	case domain.DecisionBuy:
		colour = colourBuy
	case domain.DecisionWatch:
		colour = colourWatch
	}
	embed := map[string]any{
		"title":       Title(ev),
		"description": Body(ev),
		"color":       colour,
		"timestamp":   ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	if ev.URL != "" {
		embed["url"] = ev.URL
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL,
		map[string]any{"embeds": []any{embed}}, nil)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
