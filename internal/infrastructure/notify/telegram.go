package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	ChannelTelegram = "telegram"

	telegramLimit   = 3500
	telegramAPIBase = "https://api.telegram.org"
)

// Telegram sends alerts to a chat via the bot API.
type Telegram struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.AlertSender = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier. An empty apiBase targets the
// public Bot API.
func NewTelegram(apiBase, botToken, chatID string) *Telegram {
	if apiBase == "" {
		apiBase = telegramAPIBase
	}
	return &Telegram{
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Channel names the sender.
func (n *Telegram) Channel() string {
	return ChannelTelegram
}

// Send posts one message with every item, cut to the Telegram cap. An empty batch is a
// no-op.
func (n *Telegram) Send(ctx context.Context, items []domain.Item) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("%w: bot token and chat id are required", ErrMisconfigured)}
	}

	text := Truncate(FormatItems(items), telegramLimit)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"disable_web_page_preview": false,
	})
	if err != nil {
		return &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("marshal message: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("telegram error: %s", resp.Status)}
	}

	return nil
}
