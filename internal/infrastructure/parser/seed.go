package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// SeedRecord is one JSON line of a seed file.
type SeedRecord struct {
	URL       string         `json:"url"`
	Title     string         `json:"title"`
	Text      string         `json:"text"`
	Metrics   domain.Metrics `json:"metrics"`
	CreatedAt string         `json:"created_at"`
}

// SeedOptions configures a seed-backed collector.
type SeedOptions struct {
	Source       domain.Source
	SeedFile     string
	DefaultURL   string
	DefaultTitle string
	// Mock is used when the seed file does not exist.
	Mock []SeedRecord
	// KeywordGroup enables keyword rotation; each fetch advances the group by one.
	KeywordGroup string
	Keywords     []string
	Rotator      ports.KeywordRotator
	// Collector tags rows that do not name their collector.
	Collector string
}

// SeedCollector reads JSON-lines seed files, falling back to built-in mock rows.
type SeedCollector struct {
	opts   SeedOptions
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.Collector = (*SeedCollector)(nil)

// NewSeedCollector builds a collector over a seed file.
func NewSeedCollector(opts SeedOptions, logger *slog.Logger) *SeedCollector {
	return &SeedCollector{opts: opts, logger: logger, now: time.Now}
}

// NewXSeedCollector is the x_mock source: seed file or two mock posts.
func NewXSeedCollector(seedFile string, logger *slog.Logger) *SeedCollector {
	return NewSeedCollector(SeedOptions{
		Source:       domain.SourceX,
		SeedFile:     seedFile,
		DefaultURL:   "https://x.com/",
		DefaultTitle: "(tweet)",
		Mock: []SeedRecord{
			{
				URL:   "https://x.com/example/status/1",
				Title: "New AI tool hits 10k users in 48h",
				Text:  "If you do X, you can get Y in Z hours…",
				Metrics: domain.Metrics{
					Likes: domain.Num(12000), Retweets: domain.Num(1800), Replies: domain.Num(220),
				},
			},
			{
				URL:   "https://x.com/example/status/2",
				Title: "Open-source agent framework drops",
				Text:  "Repo + quickstart + benchmarks…",
				Metrics: domain.Metrics{
					Likes: domain.Num(6000), Retweets: domain.Num(900), Replies: domain.Num(150),
				},
			},
		},
	}, logger)
}

// NewTikTokSeedCollector is the default tiktok source: seed file or mock videos, each
// tagged with the rotated keyword.
func NewTikTokSeedCollector(seedFile string, keywords []string, rotator ports.KeywordRotator, logger *slog.Logger) *SeedCollector {
	return NewSeedCollector(SeedOptions{
		Source:       domain.SourceTikTok,
		SeedFile:     seedFile,
		DefaultURL:   "https://www.tiktok.com/",
		DefaultTitle: "(tiktok)",
		KeywordGroup: string(domain.SourceTikTok),
		Keywords:     keywords,
		Rotator:      rotator,
		Collector:    "mock",
		Mock: []SeedRecord{
			{
				URL:   "https://www.tiktok.com/@example/video/111",
				Title: "New drink brand is everywhere (Gen Z)",
				Text:  "Seeing this brand in every college video…",
				Metrics: domain.Metrics{
					Views: domain.Num(2_500_000), Likes: domain.Num(210_000), Comments: domain.Num(3_200),
					Shares: domain.Num(18_000), ViewVelocity: domain.Num(0.82),
				},
			},
			{
				URL:   "https://www.tiktok.com/@example/video/222",
				Title: "Abercrombie haul revival??",
				Text:  "ABERCROMBIE is back and no one told Wall St.",
				Metrics: domain.Metrics{
					Views: domain.Num(1_200_000), Likes: domain.Num(95_000), Comments: domain.Num(1_100),
					Shares: domain.Num(7_500), ViewVelocity: domain.Num(0.74),
				},
			},
		},
	}, logger)
}

// Name identifies the collector inside the registry.
func (c *SeedCollector) Name() domain.Source {
	return c.opts.Source
}

// Fetch reads the seed file. Malformed lines are skipped.
func (c *SeedCollector) Fetch(ctx context.Context) ([]domain.Item, error) {
	keyword := ""
	if c.opts.Rotator != nil && c.opts.KeywordGroup != "" {
		kw, err := c.opts.Rotator.NextKeyword(ctx, c.opts.KeywordGroup, c.opts.Keywords)
		if err != nil {
			c.warn("keyword rotation failed", "source", c.opts.Source, "error", err)
		}
		keyword = kw
	}

	records, raws, err := c.load()
	if err != nil {
		return nil, err
	}

	fetchedAt := c.now().UTC()
	items := make([]domain.Item, 0, len(records))
	for i, rec := range records {
		items = append(items, c.toItem(rec, raws[i], keyword, fetchedAt))
	}
	return items, nil
}

func (c *SeedCollector) load() ([]SeedRecord, [][]byte, error) {
	data, err := os.ReadFile(c.opts.SeedFile)
	if err != nil {
		if c.opts.SeedFile == "" || errors.Is(err, fs.ErrNotExist) {
			return c.mock()
		}
		return nil, nil, fmt.Errorf("read seed %s: %w", c.opts.SeedFile, err)
	}

	var (
		records []SeedRecord
		raws    [][]byte
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec SeedRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			c.warn("skip seed line", "source", c.opts.Source, "line", line, "error", err)
			continue
		}
		records = append(records, rec)
		raws = append(raws, []byte(text))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan seed %s: %w", c.opts.SeedFile, err)
	}
	return records, raws, nil
}

func (c *SeedCollector) mock() ([]SeedRecord, [][]byte, error) {
	records := make([]SeedRecord, 0, len(c.opts.Mock))
	raws := make([][]byte, 0, len(c.opts.Mock))
	for _, rec := range c.opts.Mock {
		rec.Metrics = rec.Metrics.Clone()
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("encode mock row: %w", err)
		}
		records = append(records, rec)
		raws = append(raws, raw)
	}
	return records, raws, nil
}

func (c *SeedCollector) toItem(rec SeedRecord, raw []byte, keyword string, fetchedAt time.Time) domain.Item {
	url := rec.URL
	if url == "" {
		url = c.opts.DefaultURL
	}
	title := rec.Title
	if title == "" {
		title = c.opts.DefaultTitle
	}

	it := domain.NewItem(c.opts.Source, url, title)
	it.Text = rec.Text
	it.Metrics = rec.Metrics
	it.CreatedAt = rec.CreatedAt
	it.FetchedAt = fetchedAt
	it.Raw = json.RawMessage(raw)

	if c.opts.Collector != "" && it.Metrics.Collector == "" {
		it.Metrics.Collector = c.opts.Collector
	}
	if keyword != "" && it.Metrics.Keyword == "" {
		it.Metrics.Keyword = keyword
	}
	return it
}

func (c *SeedCollector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
