package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv       = "SIGNAL_SCANNER_CONFIG"
	databaseDriverEnv   = "DATABASE_DRIVER"
	databaseDSNEnv      = "DATABASE_DSN"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	discordWebhookEnv   = "DISCORD_WEBHOOK_URL"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	visionModelEnv      = "VISION_ENRICH_MODEL"
	visionProviderEnv   = "VISION_ENRICH_PROVIDER"
	internalRunnerEnv   = "INTERNAL_RUNNER_URL"
	logLevelEnv         = "LOG_LEVEL"
	defaultOpenAIURL    = "https://api.openai.com/v1/chat/completions"
	defaultVisionModel  = "gpt-4o-mini"
	defaultTelegramBase = "https://api.telegram.org"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Sources       SourcesConfig      `yaml:"sources"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Vision        VisionConfig       `yaml:"vision"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Notifications NotificationConfig `yaml:"notifications"`
	Export        ExportConfig       `yaml:"export"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines how often the daemon runs a cycle and what a cycle does.
type SchedulerConfig struct {
	Interval   time.Duration  `yaml:"interval"`
	Timezone   string         `yaml:"timezone"`
	ScoreLimit int            `yaml:"scoreLimit"`
	TopK       int            `yaml:"topK"`
	MinScore   float64        `yaml:"minScore"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SourcesConfig groups collector settings.
type SourcesConfig struct {
	Enabled   []string      `yaml:"enabled"`
	UserAgent string        `yaml:"userAgent"`
	Timeout   time.Duration `yaml:"timeout"`
	RPS       float64       `yaml:"rps"`
	HN        HNConfig      `yaml:"hn"`
	RSS       RSSConfig     `yaml:"rss"`
	Reddit    RedditConfig  `yaml:"reddit"`
	X         SeedConfig    `yaml:"x"`
	TikTok    TikTokConfig  `yaml:"tiktok"`
}

// HNConfig configures the Hacker News collector.
type HNConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Kind    string `yaml:"kind"`
	Limit   int    `yaml:"limit"`
}

// RSSConfig lists plain feeds.
type RSSConfig struct {
	Feeds []string `yaml:"feeds"`
	Limit int      `yaml:"limit"`
}

// RedditConfig lists subreddits read through their RSS endpoints.
type RedditConfig struct {
	BaseURL    string   `yaml:"baseUrl"`
	Subreddits []string `yaml:"subreddits"`
	Limit      int      `yaml:"limit"`
}

// SeedConfig points at a JSONL seed file.
type SeedConfig struct {
	SeedFile string `yaml:"seedFile"`
}

// TikTokConfig covers the seed collector and the opt-in page collector.
type TikTokConfig struct {
	SeedFile string     `yaml:"seedFile"`
	Keywords []string   `yaml:"keywords"`
	Page     PageConfig `yaml:"page"`
}

// PageConfig enables HTML scraping in place of seed data.
type PageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"baseUrl"`
	Locale    string `yaml:"locale"`
	MaxVideos int    `yaml:"maxVideos"`
}

// EnrichmentConfig locates the offline enrichment catalogs.
type EnrichmentConfig struct {
	BrandsFile    string `yaml:"brandsFile"`
	InvestableMap string `yaml:"investableMap"`
	Overwrite     bool   `yaml:"overwrite"`
}

// VisionConfig selects and configures the screenshot enrichment provider.
type VisionConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"apiKey"`
	RunnerURL string        `yaml:"runnerUrl"`
	MaxImages int           `yaml:"maxImages"`
	Source    string        `yaml:"source"`
	Limit     int           `yaml:"limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ScoringConfig locates the keyword list.
type ScoringConfig struct {
	KeywordsFile string `yaml:"keywordsFile"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Channel  string         `yaml:"channel"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIBase  string `yaml:"apiBase"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Configured reports whether both token and chat are set.
func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// DiscordConfig holds the incoming webhook.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// Configured reports whether a webhook is set.
func (d DiscordConfig) Configured() bool {
	return d.WebhookURL != ""
}

// ExportConfig controls report files.
type ExportConfig struct {
	OutDir string `yaml:"outDir"`
	Limit  int    `yaml:"limit"`
}

// HTTPConfig is the dashboard listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides. An empty
// path falls back to SIGNAL_SCANNER_CONFIG.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{databaseDriverEnv, &c.Database.Driver},
		{databaseDSNEnv, &c.Database.DSN},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{discordWebhookEnv, &c.Notifications.Discord.WebhookURL},
		{openAIAPIKeyEnv, &c.Vision.APIKey},
		{visionModelEnv, &c.Vision.Model},
		{visionProviderEnv, &c.Vision.Provider},
		{internalRunnerEnv, &c.Vision.RunnerURL},
		{logLevelEnv, &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	setString(&base.Database.Driver, override.Database.Driver)
	setString(&base.Database.DSN, override.Database.DSN)

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	setString(&base.Scheduler.Timezone, override.Scheduler.Timezone)
	setInt(&base.Scheduler.ScoreLimit, override.Scheduler.ScoreLimit)
	setInt(&base.Scheduler.TopK, override.Scheduler.TopK)
	if override.Scheduler.MinScore > 0 {
		base.Scheduler.MinScore = override.Scheduler.MinScore
	}

	src := override.Sources
	if len(src.Enabled) > 0 {
		base.Sources.Enabled = src.Enabled
	}
	setString(&base.Sources.UserAgent, src.UserAgent)
	if src.Timeout > 0 {
		base.Sources.Timeout = src.Timeout
	}
	if src.RPS > 0 {
		base.Sources.RPS = src.RPS
	}
	setString(&base.Sources.HN.BaseURL, src.HN.BaseURL)
	setString(&base.Sources.HN.Kind, src.HN.Kind)
	setInt(&base.Sources.HN.Limit, src.HN.Limit)
	if len(src.RSS.Feeds) > 0 {
		base.Sources.RSS.Feeds = src.RSS.Feeds
	}
	setInt(&base.Sources.RSS.Limit, src.RSS.Limit)
	setString(&base.Sources.Reddit.BaseURL, src.Reddit.BaseURL)
	if len(src.Reddit.Subreddits) > 0 {
		base.Sources.Reddit.Subreddits = src.Reddit.Subreddits
	}
	setInt(&base.Sources.Reddit.Limit, src.Reddit.Limit)
	setString(&base.Sources.X.SeedFile, src.X.SeedFile)
	setString(&base.Sources.TikTok.SeedFile, src.TikTok.SeedFile)
	if len(src.TikTok.Keywords) > 0 {
		base.Sources.TikTok.Keywords = src.TikTok.Keywords
	}
	if src.TikTok.Page.Enabled {
		base.Sources.TikTok.Page.Enabled = true
	}
	setString(&base.Sources.TikTok.Page.BaseURL, src.TikTok.Page.BaseURL)
	setString(&base.Sources.TikTok.Page.Locale, src.TikTok.Page.Locale)
	setInt(&base.Sources.TikTok.Page.MaxVideos, src.TikTok.Page.MaxVideos)

	setString(&base.Enrichment.BrandsFile, override.Enrichment.BrandsFile)
	setString(&base.Enrichment.InvestableMap, override.Enrichment.InvestableMap)
	if override.Enrichment.Overwrite {
		base.Enrichment.Overwrite = true
	}

	v := override.Vision
	setString(&base.Vision.Provider, v.Provider)
	setString(&base.Vision.Model, v.Model)
	setString(&base.Vision.Endpoint, v.Endpoint)
	setString(&base.Vision.APIKey, v.APIKey)
	setString(&base.Vision.RunnerURL, v.RunnerURL)
	setInt(&base.Vision.MaxImages, v.MaxImages)
	setString(&base.Vision.Source, v.Source)
	setInt(&base.Vision.Limit, v.Limit)
	if v.Timeout > 0 {
		base.Vision.Timeout = v.Timeout
	}

	setString(&base.Scoring.KeywordsFile, override.Scoring.KeywordsFile)

	n := override.Notifications
	setString(&base.Notifications.Channel, n.Channel)
	setString(&base.Notifications.Telegram.APIBase, n.Telegram.APIBase)
	setString(&base.Notifications.Telegram.BotToken, n.Telegram.BotToken)
	setString(&base.Notifications.Telegram.ChatID, n.Telegram.ChatID)
	setString(&base.Notifications.Discord.WebhookURL, n.Discord.WebhookURL)

	setString(&base.Export.OutDir, override.Export.OutDir)
	setInt(&base.Export.Limit, override.Export.Limit)
	setString(&base.HTTP.Addr, override.HTTP.Addr)
	setString(&base.Logging.Level, override.Logging.Level)

	return base
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./data/signals.db"},
		Scheduler: SchedulerConfig{
			Interval:   5 * time.Minute,
			Timezone:   defaultTimezone,
			ScoreLimit: 200,
			TopK:       10,
			MinScore:   0.65,
			location:   tz,
		},
		Sources: SourcesConfig{
			Enabled:   []string{"hn", "rss", "reddit", "tiktok", "x"},
			UserAgent: "SignalScanner/1.0",
			Timeout:   30 * time.Second,
			RPS:       5,
			HN:        HNConfig{Kind: "top", Limit: 50},
			RSS: RSSConfig{
				Feeds: []string{"https://www.producthunt.com/feed", "https://techcrunch.com/feed/"},
				Limit: 20,
			},
			Reddit: RedditConfig{
				BaseURL:    "https://www.reddit.com",
				Subreddits: []string{"SaaS", "startups", "Entrepreneur"},
				Limit:      15,
			},
			X: SeedConfig{SeedFile: "./data/x_seed.jsonl"},
			TikTok: TikTokConfig{
				SeedFile: "./data/tiktok_seed.jsonl",
				Keywords: []string{"tiktok made me buy it", "viral product", "amazon finds"},
				Page:     PageConfig{BaseURL: "https://www.tiktok.com", Locale: "en", MaxVideos: 10},
			},
		},
		Enrichment: EnrichmentConfig{
			BrandsFile:    "./data/brands.txt",
			InvestableMap: "./data/investable_map.csv",
		},
		Vision: VisionConfig{
			Provider:  "stub",
			Model:     defaultVisionModel,
			Endpoint:  defaultOpenAIURL,
			MaxImages: 5,
			Source:    "tiktok",
			Limit:     50,
			Timeout:   60 * time.Second,
		},
		Scoring: ScoringConfig{KeywordsFile: "./data/keywords.txt"},
		Notifications: NotificationConfig{
			Channel:  "auto",
			Telegram: TelegramConfig{APIBase: defaultTelegramBase},
		},
		Export:  ExportConfig{OutDir: "./data/reports", Limit: 100},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}
