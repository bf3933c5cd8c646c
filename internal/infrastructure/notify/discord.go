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
	ChannelDiscord = "discord"

	// Discord rejects content over 2000 characters.
	discordLimit = 1900
)

// Discord posts alerts to an incoming webhook.
type Discord struct {
	webhookURL string
	client     *http.Client
}

var _ ports.AlertSender = (*Discord)(nil)

// NewDiscord wires the webhook URL.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Channel names the sender.
func (d *Discord) Channel() string {
	return ChannelDiscord
}

// Send posts every item as one webhook message.
func (d *Discord) Send(ctx context.Context, items []domain.Item) error {
	if d.webhookURL == "" {
		return &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("%w: webhook url is required", ErrMisconfigured)}
	}

	content := Truncate(FormatItems(items), discordLimit)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("marshal message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("discord error: %s", resp.Status)}
	}
	return nil
}
