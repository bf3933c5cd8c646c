package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDriverEnv, databaseDSNEnv, telegramTokenEnv, telegramChatIDEnv,
		discordWebhookEnv, openAIAPIKeyEnv, visionModelEnv, visionProviderEnv, internalRunnerEnv,
		logLevelEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load("")
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "stub", cfg.Vision.Provider)
	assert.Equal(t, 5, cfg.Vision.MaxImages)
	assert.Equal(t, "auto", cfg.Notifications.Channel)
	assert.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
	assert.False(t, cfg.Notifications.Telegram.Configured())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
database:
  driver: postgres
  dsn: postgres://u:p@localhost/signals
scheduler:
  interval: 10m
  topK: 3
sources:
  enabled: [hn]
  rss:
    feeds: ["https://example.com/feed"]
vision:
  provider: openai
notifications:
  discord:
    webhookUrl: https://discord.example/hook
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg := Load(path)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 3, cfg.Scheduler.TopK)
	assert.Equal(t, 0.65, cfg.Scheduler.MinScore)
	assert.Equal(t, []string{"hn"}, cfg.Sources.Enabled)
	assert.Equal(t, []string{"https://example.com/feed"}, cfg.Sources.RSS.Feeds)
	assert.Equal(t, 20, cfg.Sources.RSS.Limit)
	assert.Equal(t, "openai", cfg.Vision.Provider)
	assert.Equal(t, defaultVisionModel, cfg.Vision.Model)
	assert.True(t, cfg.Notifications.Discord.Configured())
}

func TestLoadEnvOverridesWin(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "/tmp/x.db")
	t.Setenv(telegramTokenEnv, "tok")
	t.Setenv(telegramChatIDEnv, "42")
	t.Setenv(visionProviderEnv, "internal")
	t.Setenv(internalRunnerEnv, "http://runner")
	t.Setenv(logLevelEnv, "debug")

	cfg := Load("")
	assert.Equal(t, "/tmp/x.db", cfg.Database.DSN)
	assert.True(t, cfg.Notifications.Telegram.Configured())
	assert.Equal(t, "internal", cfg.Vision.Provider)
	assert.Equal(t, "http://runner", cfg.Vision.RunnerURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadBadFileFallsBack(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))

	cfg := Load(path)
	assert.Equal(t, defaultConfig().Database, cfg.Database)

	cfg = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, defaultConfig().HTTP, cfg.HTTP)
}

func TestUnknownTimezoneRevertsToUTC(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  timezone: Nowhere/Land\n"), 0o600))

	cfg := Load(path)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}
