package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const hnBaseURL = "https://hacker-news.firebaseio.com/v0"

// HNCollector reads stories from the Hacker News Firebase API.
type HNCollector struct {
	fetcher *Fetcher
	baseURL string
	kind    string
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.Collector = (*HNCollector)(nil)

// HNOptions configures the collector; Kind is top, new or best.
type HNOptions struct {
	BaseURL string
	Kind    string
	Limit   int
}

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int64  `json:"score"`
	Descendants int64  `json:"descendants"`
}

// NewHNCollector wires the shared fetcher.
func NewHNCollector(f *Fetcher, opts HNOptions, logger *slog.Logger) *HNCollector {
	if opts.BaseURL == "" {
		opts.BaseURL = hnBaseURL
	}
	if opts.Kind == "" {
		opts.Kind = "top"
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return &HNCollector{
		fetcher: f,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		kind:    opts.Kind,
		limit:   opts.Limit,
		logger:  logger,
		now:     time.Now,
	}
}

// Name identifies the collector inside the registry.
func (c *HNCollector) Name() domain.Source {
	return domain.SourceHN
}

// Fetch returns stories from the configured list; items that fail to load are skipped.
func (c *HNCollector) Fetch(ctx context.Context) ([]domain.Item, error) {
	var ids []int64
	if err := c.fetcher.GetJSON(ctx, fmt.Sprintf("%s/%sstories.json", c.baseURL, c.kind), &ids); err != nil {
		return nil, fmt.Errorf("list %s stories: %w", c.kind, err)
	}
	if len(ids) > c.limit {
		ids = ids[:c.limit]
	}

	fetchedAt := c.now().UTC()
	items := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		body, err := c.fetcher.Get(ctx, fmt.Sprintf("%s/item/%d.json", c.baseURL, id))
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			c.warn("skip hn item", "id", id, "error", err)
			continue
		}

		var story hnItem
		if err := json.Unmarshal(body, &story); err != nil {
			c.warn("decode hn item", "id", id, "error", err)
			continue
		}
		if story.Type != "story" {
			continue
		}
		items = append(items, c.toItem(story, body, fetchedAt))
	}

	c.debug("hn fetched", "kind", c.kind, "items", len(items))
	return items, nil
}

func (c *HNCollector) toItem(story hnItem, raw []byte, fetchedAt time.Time) domain.Item {
	url := story.URL
	if url == "" {
		url = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
	}
	title := story.Title
	if title == "" {
		title = "(no title)"
	}

	it := domain.Item{
		ID:        domain.StableID(string(domain.SourceHN), strconv.FormatInt(story.ID, 10), url),
		Source:    domain.SourceHN,
		URL:       url,
		Title:     title,
		Text:      story.Text,
		FetchedAt: fetchedAt,
		Raw:       json.RawMessage(raw),
	}
	it.Metrics.Points = domain.Num(float64(story.Score))
	it.Metrics.Comments = domain.Num(float64(story.Descendants))
	if story.By != "" {
		_ = it.Metrics.SetExtra("by", story.By)
	}
	if story.Time > 0 {
		it.CreatedAt = time.Unix(story.Time, 0).UTC().Format(time.RFC3339)
	}
	return it
}

func (c *HNCollector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *HNCollector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
