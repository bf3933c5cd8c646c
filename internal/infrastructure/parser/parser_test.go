package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/scanner"
)

func testFetcher(srv *httptest.Server) *Fetcher {
	return NewFetcher(srv.Client(), FetcherOptions{RPS: 1000, Burst: 100})
}

type fakeRotator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *fakeRotator) NextKeyword(_ context.Context, group string, keywords []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(keywords) == 0 {
		return "", nil
	}
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	kw := keywords[r.calls[group]%len(keywords)]
	r.calls[group]++
	return kw, nil
}

func TestParseFeedRSS(t *testing.T) {
	t.Parallel()

	body := `<?xml version="1.0"?>
	<rss version="2.0"><channel>
	  <item>
	    <title>Launch &amp; growth</title>
	    <link>https://example.com/a</link>
	    <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
	    <pubDate>Tue, 03 Mar 2026 10:00:00 +0000</pubDate>
	  </item>
	  <item>
	    <title>No link</title>
	    <guid>https://example.com/guid</guid>
	  </item>
	</channel></rss>`

	entries, err := ParseFeed([]byte(body))
	if err != nil {
		t.Fatalf("ParseFeed error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Title != "Launch & growth" {
		t.Fatalf("unexpected title: %q", entries[0].Title)
	}
	if entries[0].Summary != "Hello world" {
		t.Fatalf("unexpected summary: %q", entries[0].Summary)
	}
	if entries[0].Published != "2026-03-03T10:00:00Z" {
		t.Fatalf("unexpected published: %q", entries[0].Published)
	}
	if entries[1].Link != "https://example.com/guid" {
		t.Fatalf("expected guid fallback, got %q", entries[1].Link)
	}
}

func TestParseFeedAtom(t *testing.T) {
	t.Parallel()

	body := `<?xml version="1.0" encoding="UTF-8"?>
	<feed xmlns="http://www.w3.org/2005/Atom">
	  <entry>
	    <title>Reddit post</title>
	    <link rel="alternate" href="https://www.reddit.com/r/golang/comments/1"/>
	    <content type="html">&lt;div&gt;body text&lt;/div&gt;</content>
	    <updated>2026-03-03T10:00:00+02:00</updated>
	  </entry>
	</feed>`

	entries, err := ParseFeed([]byte(body))
	if err != nil {
		t.Fatalf("ParseFeed error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Link != "https://www.reddit.com/r/golang/comments/1" || e.Summary != "body text" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Published != "2026-03-03T08:00:00Z" {
		t.Fatalf("unexpected published: %q", e.Published)
	}

	if _, err := ParseFeed([]byte(`<html></html>`)); err == nil {
		t.Fatalf("expected error for non-feed document")
	}
}

func TestHNCollectorSkipsBadItems(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			_, _ = w.Write([]byte(`[1, 2, 3, 4]`))
		case "/item/1.json":
			_, _ = w.Write([]byte(`{"id":1,"type":"story","by":"pg","time":1767225600,"title":"Show HN: agent","score":120,"descendants":40}`))
		case "/item/3.json":
			_, _ = w.Write([]byte(`{"id":3,"type":"comment","text":"nope"}`))
		case "/item/4.json":
			_, _ = w.Write([]byte(`{"id":4,"type":"story","url":"https://example.com/x","title":"Linked","score":5}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c := NewHNCollector(testFetcher(server), HNOptions{BaseURL: server.URL, Limit: 10}, nil)
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(items))
	}

	first := items[0]
	if first.URL != "https://news.ycombinator.com/item?id=1" {
		t.Fatalf("unexpected fallback url: %s", first.URL)
	}
	if first.ID != domain.StableID("hn", "1", first.URL) {
		t.Fatalf("unexpected id: %s", first.ID)
	}
	if first.Metrics.Points.Value != 120 || first.Metrics.Comments.Value != 40 {
		t.Fatalf("unexpected metrics: %+v", first.Metrics)
	}
	if first.CreatedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected created_at: %s", first.CreatedAt)
	}
	if by, ok := first.Metrics.Lookup("by"); !ok || string(by) != `"pg"` {
		t.Fatalf("expected author in metrics, got %s", by)
	}
}

func TestHNCollectorListFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := NewHNCollector(testFetcher(server), HNOptions{BaseURL: server.URL}, nil)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error when story list is unavailable")
	}
}

func TestRedditCollectorSkipsFailingFeeds(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		if r.URL.Path != "/r/golang/hot/.rss" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom">
		  <entry><title>one</title><link href="https://r.example/1"/></entry>
		  <entry><title>two</title><link href="https://r.example/2"/></entry>
		  <entry><title>three</title><link href="https://r.example/3"/></entry>
		</feed>`))
	}))
	defer server.Close()

	c := NewRedditCollector(testFetcher(server), server.URL, []string{"missing", "r/golang", " "}, 2, nil)
	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected limit of 2 entries, got %d", len(items))
	}
	if items[0].Source != domain.SourceReddit {
		t.Fatalf("unexpected source: %s", items[0].Source)
	}
	if sub, ok := items[0].Metrics.Lookup("subreddit"); !ok || string(sub) != `"golang"` {
		t.Fatalf("expected subreddit metric, got %s", sub)
	}
}

func TestSeedCollectorMockFallback(t *testing.T) {
	t.Parallel()

	rot := &fakeRotator{}
	c := NewTikTokSeedCollector(filepath.Join(t.TempDir(), "missing.jsonl"), []string{"stanley", "dupes"}, rot, nil)

	first, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	second, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected two mock videos per fetch")
	}
	if first[0].Metrics.Keyword != "stanley" || second[0].Metrics.Keyword != "dupes" {
		t.Fatalf("keyword did not rotate: %q then %q", first[0].Metrics.Keyword, second[0].Metrics.Keyword)
	}
	if first[0].Metrics.Collector != "mock" {
		t.Fatalf("expected mock collector tag, got %q", first[0].Metrics.Collector)
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("identity must be stable across fetches")
	}
	if first[1].Metrics.ViewVelocity.Value != 0.74 {
		t.Fatalf("unexpected view velocity: %v", first[1].Metrics.ViewVelocity)
	}
}

func TestSeedCollectorReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x_seed.jsonl")
	lines := []string{
		`{"url":"https://x.com/a/status/9","title":"hello","metrics":{"likes":"1.2K","custom":true},"created_at":"2026-03-01T00:00:00Z"}`,
		`not json`,
		``,
		`{"text":"untitled"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	items, err := NewXSeedCollector(path, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Metrics.Likes.Value != 1200 {
		t.Fatalf("unexpected likes: %v", items[0].Metrics.Likes)
	}
	if _, ok := items[0].Metrics.Lookup("custom"); !ok {
		t.Fatalf("unknown metric key was dropped")
	}
	if items[1].URL != "https://x.com/" || items[1].Title != "(tweet)" {
		t.Fatalf("unexpected defaults: %s %s", items[1].URL, items[1].Title)
	}
	var raw map[string]any
	if err := json.Unmarshal(items[0].Raw, &raw); err != nil || raw["title"] != "hello" {
		t.Fatalf("raw payload not kept: %s", items[0].Raw)
	}
}

func TestPageCollectorExtractors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("q") != "stanley cup" {
				t.Errorf("unexpected keyword: %s", r.URL.Query().Get("q"))
			}
			_, _ = w.Write([]byte(`<html><body>
			  <a href="/@a/video/1?lang=en">First clip</a>
			  <a href="/@a/video/1">dup</a>
			  <a href="/@b/video/2">Second clip</a>
			  <a href="/@c/photo/3">not a video</a>
			</body></html>`))
		case "/@a/video/1":
			_, _ = w.Write([]byte(`<html><head>
			  <meta property="og:image" content="https://img.example/1.jpg">
			</head><body>
			  <h1 data-e2e="browse-video-desc">  Stanley cup   haul  </h1>
			  <button aria-label="12.5K likes"></button>
			  <button aria-label="1,204 comments"></button>
			</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var mu sync.Mutex
	seen := map[string]int{}
	c := NewPageCollector(testFetcher(server), PageOptions{
		BaseURL:  server.URL,
		Keywords: []string{"stanley cup"},
		Rotator:  &fakeRotator{},
		OnExtractor: func(name string, ok bool) {
			mu.Lock()
			defer mu.Unlock()
			if ok {
				seen[name]++
			}
		},
	}, nil)

	items, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(items))
	}

	first := items[0]
	if first.URL != server.URL+"/@a/video/1" {
		t.Fatalf("unexpected url: %s", first.URL)
	}
	if first.Title != "Stanley cup haul" || first.Text != "Stanley cup haul" {
		t.Fatalf("unexpected caption: %q / %q", first.Title, first.Text)
	}
	if first.Metrics.Likes.Value != 12500 || first.Metrics.Comments.Value != 1204 {
		t.Fatalf("unexpected counters: %+v", first.Metrics)
	}
	if first.Metrics.Keyword != "stanley cup" || first.Metrics.Collector != "page" {
		t.Fatalf("unexpected tags: %q %q", first.Metrics.Keyword, first.Metrics.Collector)
	}
	var outcomes map[string]bool
	raw, _ := first.Metrics.Lookup("extractors")
	if err := json.Unmarshal(raw, &outcomes); err != nil {
		t.Fatalf("extractors metric: %v", err)
	}
	if !outcomes["caption"] || !outcomes["counters"] || !outcomes["open_graph"] {
		t.Fatalf("unexpected outcomes: %v", outcomes)
	}

	second := items[1]
	if second.Title != "(tiktok)" || second.Text != "Second clip" {
		t.Fatalf("unexpected fallback: %q / %q", second.Title, second.Text)
	}
	raw, _ = second.Metrics.Lookup("extractors")
	if string(raw) != `{"caption":false,"counters":false,"open_graph":false}` {
		t.Fatalf("unexpected outcomes: %s", raw)
	}

	if seen["caption"] != 1 || seen["counters"] != 1 {
		t.Fatalf("unexpected observer counts: %v", seen)
	}
}

type stubCollector struct {
	name  domain.Source
	items []domain.Item
	err   error
}

func (s stubCollector) Name() domain.Source { return s.name }

func (s stubCollector) Fetch(context.Context) ([]domain.Item, error) { return s.items, s.err }

func TestStrategySourceCollect(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubCollector{name: domain.SourceHN, items: []domain.Item{{ID: "1"}, {ID: "2"}}})
	reg.Register(stubCollector{name: domain.SourceX, err: errors.New("offline")})
	reg.Register(stubCollector{name: domain.SourceTikTok, items: []domain.Item{{ID: "3", Source: domain.SourceTikTok}}})

	batch, err := NewStrategySource(reg, nil).Collect(context.Background(), []string{"hn", "twitter", "nope", "TT"})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(batch.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(batch.Items))
	}
	if batch.Items[0].Source != domain.SourceHN {
		t.Fatalf("source not stamped: %q", batch.Items[0].Source)
	}
	if batch.PerSource["hn"] != 2 || batch.PerSource["tiktok"] != 1 {
		t.Fatalf("unexpected per-source counts: %v", batch.PerSource)
	}
	if len(batch.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", batch.Failures)
	}
	if !errors.Is(batch.Failures[1].Err, scanner.ErrUnknownSource) {
		t.Fatalf("expected unknown source error, got %v", batch.Failures[1].Err)
	}
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubCollector{name: domain.SourceRSS}, "feeds")
	reg.Register(stubCollector{name: domain.SourceHN})

	if got := strings.Join(reg.Names(), ","); got != "hn,rss" {
		t.Fatalf("unexpected names: %s", got)
	}
	if c, err := reg.Resolve(" Feeds "); err != nil || c.Name() != domain.SourceRSS {
		t.Fatalf("alias did not resolve: %v", err)
	}
}
