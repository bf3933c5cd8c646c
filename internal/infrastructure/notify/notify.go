// Package notify delivers ranked items to chat channels or stdout.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	ChannelStdout = "stdout"
	ChannelAuto   = "auto"

	separator = "------------------------------------------------------------"
)

// ErrMisconfigured means the selected channel lacks credentials.
var ErrMisconfigured = errors.New("alert channel misconfigured")

// DeliveryError carries the channel that failed.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// FormatItem renders "[source] score=0.00", the title and the url on three lines.
func FormatItem(it domain.Item) string {
	score := 0.0
	if it.Score != nil {
		score = *it.Score
	}
	return fmt.Sprintf("[%s] score=%.2f\n%s\n%s", it.Source, score, strings.TrimSpace(it.Title), it.URL)
}

// FormatItems joins formatted items with blank lines.
func FormatItems(items []domain.Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, FormatItem(it))
	}
	return strings.Join(parts, "\n\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Stdout prints alerts, one block per item.
type Stdout struct {
	w io.Writer
}

var _ ports.AlertSender = (*Stdout)(nil)

// NewStdout writes to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w}
}

// Channel names the sender.
func (s *Stdout) Channel() string {
	return ChannelStdout
}

// Send never truncates.
func (s *Stdout) Send(_ context.Context, items []domain.Item) error {
	for _, it := range items {
		if _, err := fmt.Fprintf(s.w, "%s\n%s\n", separator, FormatItem(it)); err != nil {
			return &DeliveryError{Channel: ChannelStdout, Err: err}
		}
	}
	return nil
}

// Select builds the sender for channel. "auto" (or empty) prefers Telegram, then
// Discord, then stdout. Naming a channel that lacks credentials is an error.
func Select(cfg config.NotificationConfig, channel string) (ports.AlertSender, error) {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case ChannelStdout:
		return NewStdout(nil), nil
	case ChannelTelegram:
		if !cfg.Telegram.Configured() {
			return nil, &DeliveryError{Channel: ChannelTelegram, Err: fmt.Errorf("%w: TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID not set", ErrMisconfigured)}
		}
		return NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.ChatID), nil
	case ChannelDiscord:
		if !cfg.Discord.Configured() {
			return nil, &DeliveryError{Channel: ChannelDiscord, Err: fmt.Errorf("%w: DISCORD_WEBHOOK_URL not set", ErrMisconfigured)}
		}
		return NewDiscord(cfg.Discord.WebhookURL), nil
	case "", ChannelAuto:
		switch {
		case cfg.Telegram.Configured():
			return NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.ChatID), nil
		case cfg.Discord.Configured():
			return NewDiscord(cfg.Discord.WebhookURL), nil
		default:
			return NewStdout(nil), nil
		}
	default:
		return nil, fmt.Errorf("unknown alert channel %q", channel)
	}
}
