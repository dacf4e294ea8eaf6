package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts through the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert with sendMessage; the title is bold.
func (t *TelegramSender) Send(ctx context.Context, ev domain.AlertEvent) error {
	return postJSON(ctx, t.client, "telegram",
		fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token),
		map[string]any{
			"chat_id":                  t.chatID,
			"text":                     fmt.Sprintf("*%s*\n%s", Title(ev), Body(ev)),
			"parse_mode":               "Markdown",
			"disable_web_page_preview": true,
		}, nil)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
