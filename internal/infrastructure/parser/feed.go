package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const redditBaseURL = "https://www.reddit.com"

// feedDoc decodes both RSS 2.0 (<rss><channel><item>) and Atom (<feed><entry>).
type feedDoc struct {
	XMLName xml.Name
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// FeedEntry is one normalized RSS/Atom entry.
type FeedEntry struct {
	Title     string
	Link      string
	Summary   string
	Published string
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseFeed decodes an RSS or Atom document. Summaries are reduced to plain text.
func ParseFeed(body []byte) ([]FeedEntry, error) {
	var doc feedDoc
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	var out []FeedEntry
	switch strings.ToLower(doc.XMLName.Local) {
	case "rss":
		for _, it := range doc.Channel.Items {
			link := strings.TrimSpace(it.Link)
			if link == "" {
				link = strings.TrimSpace(it.GUID)
			}
			out = append(out, FeedEntry{
				Title:     plainText(it.Title),
				Link:      link,
				Summary:   plainText(it.Description),
				Published: feedDate(it.PubDate),
			})
		}
	case "feed":
		for _, e := range doc.Entries {
			summary := e.Summary
			if strings.TrimSpace(summary) == "" {
				summary = e.Content
			}
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			out = append(out, FeedEntry{
				Title:     plainText(e.Title),
				Link:      atomHref(e.Links),
				Summary:   plainText(summary),
				Published: feedDate(published),
			})
		}
	default:
		return nil, fmt.Errorf("unsupported feed root <%s>", doc.XMLName.Local)
	}
	return out, nil
}

// FeedCollector turns a list of feeds into items. It serves both the rss and reddit
// sources; the latter derives feed URLs from subreddit names.
type FeedCollector struct {
	source  domain.Source
	fetcher *Fetcher
	targets []feedTarget
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.Collector = (*FeedCollector)(nil)

type feedTarget struct {
	url       string
	metricKey string
	metricVal string
}

// NewRSSCollector reads the given feed URLs.
func NewRSSCollector(f *Fetcher, feeds []string, limitPerFeed int, logger *slog.Logger) *FeedCollector {
	targets := make([]feedTarget, 0, len(feeds))
	for _, u := range feeds {
		targets = append(targets, feedTarget{url: u, metricKey: "feed", metricVal: u})
	}
	return newFeedCollector(domain.SourceRSS, f, targets, limitPerFeed, 20, logger)
}

// NewRedditCollector reads the hot feed of each subreddit.
func NewRedditCollector(f *Fetcher, baseURL string, subreddits []string, limitPerSub int, logger *slog.Logger) *FeedCollector {
	if baseURL == "" {
		baseURL = redditBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	targets := make([]feedTarget, 0, len(subreddits))
	for _, sub := range subreddits {
		sub = strings.TrimPrefix(strings.TrimSpace(sub), "r/")
		if sub == "" {
			continue
		}
		targets = append(targets, feedTarget{
			url:       fmt.Sprintf("%s/r/%s/hot/.rss", baseURL, url.PathEscape(sub)),
			metricKey: "subreddit",
			metricVal: sub,
		})
	}
	return newFeedCollector(domain.SourceReddit, f, targets, limitPerSub, 15, logger)
}

func newFeedCollector(src domain.Source, f *Fetcher, targets []feedTarget, limit, def int, logger *slog.Logger) *FeedCollector {
	if limit <= 0 {
		limit = def
	}
	return &FeedCollector{source: src, fetcher: f, targets: targets, limit: limit, logger: logger, now: time.Now}
}

// Name identifies the collector inside the registry.
func (c *FeedCollector) Name() domain.Source {
	return c.source
}

// Fetch reads every feed; a failing feed is logged and skipped.
func (c *FeedCollector) Fetch(ctx context.Context) ([]domain.Item, error) {
	fetchedAt := c.now().UTC()
	var items []domain.Item
	for _, target := range c.targets {
		body, err := c.fetcher.Get(ctx, target.url)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			c.warn("skip feed", "source", c.source, "feed", target.url, "error", err)
			continue
		}
		entries, err := ParseFeed(body)
		if err != nil {
			c.warn("skip feed", "source", c.source, "feed", target.url, "error", err)
			continue
		}
		if len(entries) > c.limit {
			entries = entries[:c.limit]
		}
		for _, e := range entries {
			items = append(items, c.toItem(target, e, fetchedAt))
		}
	}
	return items, nil
}

func (c *FeedCollector) toItem(target feedTarget, e FeedEntry, fetchedAt time.Time) domain.Item {
	link := e.Link
	if link == "" {
		link = target.url
	}
	title := e.Title
	if title == "" {
		title = "(no title)"
	}

	it := domain.NewItem(c.source, link, title)
	it.Text = e.Summary
	it.CreatedAt = e.Published
	it.FetchedAt = fetchedAt
	_ = it.Metrics.SetExtra(target.metricKey, target.metricVal)

	raw := map[string]any{
		target.metricKey: target.metricVal,
		"entry":          map[string]string{"title": title, "link": link},
	}
	if b, err := json.Marshal(raw); err == nil {
		it.Raw = b
	}
	return it
}

func (c *FeedCollector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

var textPolicy = bluemonday.StrictPolicy()

// plainText strips markup and collapses whitespace.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func feedDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func atomHref(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}
