package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
)

func scored(src domain.Source, title string, score float64) domain.Item {
	it := domain.NewItem(src, "https://example.com/"+title, title)
	it.Score = &score
	return it
}

func TestFormatItem(t *testing.T) {
	assert.Equal(t, "[hn] score=0.87\nShow HN\nhttps://example.com/Show HN",
		FormatItem(scored(domain.SourceHN, "Show HN", 0.8712)))

	it := domain.NewItem(domain.SourceRSS, "u", "  padded  ")
	assert.Equal(t, "[rss] score=0.00\npadded\nu", FormatItem(it))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héé", Truncate("héééé", 3))
	assert.Equal(t, "ok", Truncate("ok", 10))
}

func TestTelegramSendCapsLength(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	items := make([]domain.Item, 0, 60)
	for i := 0; i < 60; i++ {
		items = append(items, scored(domain.SourceHN, strings.Repeat("x", 80), 0.9))
	}

	require.NoError(t, NewTelegram(srv.URL, "tok", "42").Send(context.Background(), items))
	assert.Equal(t, "42", got["chat_id"])
	assert.Len(t, []rune(got["text"].(string)), telegramLimit)
}

func TestTelegramFailureIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewTelegram(srv.URL, "tok", "42").Send(context.Background(), []domain.Item{scored(domain.SourceHN, "a", 1)})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ChannelTelegram, de.Channel)

	err = NewTelegram("", "", "").Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestDiscordSend(t *testing.T) {
	calls := 0
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	require.NoError(t, d.Send(context.Background(), nil))
	assert.Equal(t, 0, calls, "empty batch sends nothing")

	long := scored(domain.SourceReddit, strings.Repeat("y", 3000), 0.5)
	require.NoError(t, d.Send(context.Background(), []domain.Item{long}))
	assert.Equal(t, 1, calls)
	assert.Len(t, []rune(got["content"]), discordLimit)
}

func TestStdoutSend(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	require.NoError(t, s.Send(context.Background(), []domain.Item{scored(domain.SourceX, "tweet", 0.5)}))
	assert.Equal(t, separator+"\n[x_mock] score=0.50\ntweet\nhttps://example.com/tweet\n", buf.String())
}

func TestSelect(t *testing.T) {
	both := config.NotificationConfig{
		Telegram: config.TelegramConfig{BotToken: "t", ChatID: "c"},
		Discord:  config.DiscordConfig{WebhookURL: "https://d"},
	}

	s, err := Select(both, "auto")
	require.NoError(t, err)
	assert.Equal(t, ChannelTelegram, s.Channel())

	s, err = Select(config.NotificationConfig{Discord: both.Discord}, "")
	require.NoError(t, err)
	assert.Equal(t, ChannelDiscord, s.Channel())

	s, err = Select(config.NotificationConfig{}, "auto")
	require.NoError(t, err)
	assert.Equal(t, ChannelStdout, s.Channel())

	_, err = Select(config.NotificationConfig{}, "discord")
	assert.True(t, errors.Is(err, ErrMisconfigured))

	_, err = Select(config.NotificationConfig{}, "pager")
	assert.Error(t, err)
}
