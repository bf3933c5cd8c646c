package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	tiktokBaseURL   = "https://www.tiktok.com"
	titleMaxRunes   = 80
	defaultKeyword  = "trending"
	pageCollectorID = "page"
)

var (
	videoPathExpr = regexp.MustCompile(`/video/\d+`)
	counterExprs  = map[string]*regexp.Regexp{
		"likes":    regexp.MustCompile(`([0-9][0-9.,]*\s*[kmb]?)\s+likes`),
		"comments": regexp.MustCompile(`([0-9][0-9.,]*\s*[kmb]?)\s+comments`),
		"shares":   regexp.MustCompile(`([0-9][0-9.,]*\s*[kmb]?)\s+shares`),
		"views":    regexp.MustCompile(`([0-9][0-9.,]*\s*[kmb]?)\s+views`),
	}
	captionSelectors = []string{
		"[data-e2e='browse-video-desc']",
		"[data-e2e='video-desc']",
		"h1",
		"[class*='Desc']",
	}
)

// videoPage accumulates what the extractors managed to read from one video page.
type videoPage struct {
	caption string
	counts  map[string]float64
	ogTitle string
	ogDesc  string
	ogImage string
}

// Extractor reads one aspect of a video page. It reports whether it found anything.
type Extractor struct {
	Name string
	Run  func(doc *goquery.Document, page *videoPage) bool
}

// DefaultExtractors are applied to every video page, independently of each other.
var DefaultExtractors = []Extractor{
	{Name: "caption", Run: extractCaption},
	{Name: "counters", Run: extractCounters},
	{Name: "open_graph", Run: extractOpenGraph},
}

// PageOptions configures the HTML page collector.
type PageOptions struct {
	BaseURL   string
	Locale    string
	MaxVideos int
	Keywords  []string
	Rotator   ports.KeywordRotator
	// OnExtractor observes every extractor outcome.
	OnExtractor func(name string, ok bool)
}

// PageCollector scans a search results page for video links and reads each video page
// with a set of best-effort extractors.
type PageCollector struct {
	fetcher    *Fetcher
	opts       PageOptions
	extractors []Extractor
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Collector = (*PageCollector)(nil)

// NewPageCollector wires the shared fetcher.
func NewPageCollector(f *Fetcher, opts PageOptions, logger *slog.Logger) *PageCollector {
	if opts.BaseURL == "" {
		opts.BaseURL = tiktokBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.MaxVideos <= 0 {
		opts.MaxVideos = 10
	}
	return &PageCollector{
		fetcher:    f,
		opts:       opts,
		extractors: DefaultExtractors,
		logger:     logger,
		now:        time.Now,
	}
}

// Name identifies the collector inside the registry.
func (c *PageCollector) Name() domain.Source {
	return domain.SourceTikTok
}

// Fetch fails only when the search page itself cannot be read.
func (c *PageCollector) Fetch(ctx context.Context) ([]domain.Item, error) {
	keyword := ""
	if c.opts.Rotator != nil {
		kw, err := c.opts.Rotator.NextKeyword(ctx, string(domain.SourceTikTok), c.opts.Keywords)
		if err != nil {
			c.warn("keyword rotation failed", "error", err)
		}
		keyword = kw
	}
	if keyword == "" {
		keyword = defaultKeyword
	}

	searchURL := fmt.Sprintf("%s/search?q=%s&lang=%s", c.opts.BaseURL, url.QueryEscape(keyword), url.QueryEscape(c.opts.Locale))
	doc, err := c.fetcher.GetDocument(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	candidates := c.videoLinks(doc, searchURL)
	fetchedAt := c.now().UTC()
	items := make([]domain.Item, 0, len(candidates))
	for _, cand := range candidates {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		items = append(items, c.readVideo(ctx, cand, keyword, searchURL, fetchedAt))
	}
	c.debug("page collector done", "keyword", keyword, "videos", len(items))
	return items, nil
}

type videoLink struct {
	url        string
	anchorText string
}

func (c *PageCollector) videoLinks(doc *goquery.Document, searchURL string) []videoLink {
	base, _ := url.Parse(searchURL)
	seen := map[string]struct{}{}
	var out []videoLink

	doc.Find("a[href*='/video/']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !videoPathExpr.MatchString(href) {
			return true
		}
		if ref, err := url.Parse(href); err == nil && base != nil {
			href = base.ResolveReference(ref).String()
		}
		href = strings.SplitN(href, "?", 2)[0]
		if _, ok := seen[href]; ok {
			return true
		}
		seen[href] = struct{}{}
		out = append(out, videoLink{url: href, anchorText: truncateRunes(cleanText(a.Text()), 300)})
		return len(out) < c.opts.MaxVideos
	})
	return out
}

func (c *PageCollector) readVideo(ctx context.Context, link videoLink, keyword, searchURL string, fetchedAt time.Time) domain.Item {
	page := &videoPage{counts: map[string]float64{}}
	outcomes := make(map[string]bool, len(c.extractors))

	doc, err := c.fetcher.GetDocument(ctx, link.url)
	if err != nil {
		c.warn("video page unavailable", "url", link.url, "error", err)
	}
	for _, ex := range c.extractors {
		ok := doc != nil && ex.Run(doc, page)
		outcomes[ex.Name] = ok
		if c.opts.OnExtractor != nil {
			c.opts.OnExtractor(ex.Name, ok)
		}
	}

	text := link.anchorText
	switch {
	case page.caption != "":
		text = page.caption
	case text == "" && page.ogDesc != "":
		text = page.ogDesc
	}
	title := "(tiktok)"
	switch {
	case page.caption != "":
		title = titleFrom(page.caption)
	case page.ogTitle != "":
		title = titleFrom(page.ogTitle)
	}

	it := domain.NewItem(domain.SourceTikTok, link.url, title)
	it.Text = text
	it.FetchedAt = fetchedAt
	it.Metrics.Keyword = keyword
	it.Metrics.Collector = pageCollectorID
	for name, v := range page.counts {
		n := domain.Num(v)
		switch name {
		case "likes":
			it.Metrics.Likes = n
		case "comments":
			it.Metrics.Comments = n
		case "shares":
			it.Metrics.Shares = n
		case "views":
			it.Metrics.Views = n
		}
	}
	if page.ogImage != "" {
		_ = it.Metrics.SetExtra("thumbnail", page.ogImage)
	}
	_ = it.Metrics.SetExtra("extractors", outcomes)

	raw, err := json.Marshal(map[string]string{
		"url":         link.url,
		"anchor_text": link.anchorText,
		"search_url":  searchURL,
	})
	if err == nil {
		it.Raw = raw
	}
	return it
}

func extractCaption(doc *goquery.Document, page *videoPage) bool {
	for _, sel := range captionSelectors {
		if text := cleanText(doc.Find(sel).First().Text()); text != "" {
			page.caption = text
			return true
		}
	}
	return false
}

func extractCounters(doc *goquery.Document, page *videoPage) bool {
	found := false
	doc.Find("[aria-label]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		label = strings.ToLower(label)
		for name, expr := range counterExprs {
			m := expr.FindStringSubmatch(label)
			if m == nil {
				continue
			}
			raw := strings.ReplaceAll(strings.ReplaceAll(m[1], " ", ""), ",", "")
			if v, ok := domain.ParseNumber(raw); ok {
				page.counts[name] = v
				found = true
			}
		}
		return i < 200
	})
	return found
}

func extractOpenGraph(doc *goquery.Document, page *videoPage) bool {
	meta := func(prop string) string {
		v, _ := doc.Find(fmt.Sprintf("meta[property='%s']", prop)).First().Attr("content")
		return cleanText(v)
	}
	page.ogTitle = meta("og:title")
	page.ogDesc = meta("og:description")
	page.ogImage = meta("og:image")
	return page.ogTitle != "" || page.ogDesc != "" || page.ogImage != ""
}

func titleFrom(s string) string {
	if len([]rune(s)) > titleMaxRunes {
		return string([]rune(s)[:titleMaxRunes]) + "…"
	}
	return s
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

func (c *PageCollector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *PageCollector) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
