// Package scoring turns an item's engagement, recency and keyword signals into a single
// relevance score in [0,1] with an auditable breakdown.
package scoring

import (
	"math"
	"strings"
	"time"

	"SignalScanner/internal/domain"
)

// DefaultKeywords are used when no keyword list is supplied.
var DefaultKeywords = []string{
	"ai",
	"agent",
	"open source",
	"launch",
	"product hunt",
	"saas",
	"startup",
	"viral",
	"growth",
	"automation",
}

// DefaultWeights is the weight table for the final combination.
var DefaultWeights = domain.Weights{
	Engagement:   0.50,
	Recency:      0.19,
	Keyword:      0.13,
	ViewVelocity: 0.15,
	Investable:   0.03,
}

const (
	defaultHalfLife = 18 * time.Hour

	engagementCenter = 2.0
	engagementScale  = 1.5
	velocityCenter   = 2.0
	velocityScale    = 1.2

	investablePublic = 1.0
	investableAny    = 0.6
)

// Engine computes scores. The zero value is not usable; call New.
type Engine struct {
	weights  domain.Weights
	keywords []string
	halfLife time.Duration
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithKeywords replaces the keyword list. A nil slice keeps the defaults; an empty
// non-nil slice disables keyword relevance.
func WithKeywords(keywords []string) Option {
	return func(e *Engine) {
		if keywords != nil {
			e.keywords = keywords
		}
	}
}

// WithWeights replaces the weight table.
func WithWeights(w domain.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithHalfLife sets the recency half-life.
func WithHalfLife(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.halfLife = d
		}
	}
}

// WithClock overrides the wall clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an engine with default weights, keywords and an 18h half-life.
func New(opts ...Option) *Engine {
	e := &Engine{
		weights:  DefaultWeights,
		keywords: DefaultKeywords,
		halfLife: defaultHalfLife,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the weight table in use.
func (e *Engine) Weights() domain.Weights {
	return e.weights
}

// Score attaches score and breakdown to a copy of the item.
func (e *Engine) Score(it domain.Item) domain.Item {
	score, breakdown := e.Compute(it)
	it.Score = &score
	it.ScoreBreakdown = &breakdown
	return it
}

// ScoreAll scores every item; it never fails.
func (e *Engine) ScoreAll(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, e.Score(it))
	}
	return out
}

// Compute returns the clamped score and its breakdown.
func (e *Engine) Compute(it domain.Item) (float64, domain.ScoreBreakdown) {
	m := it.Metrics

	engRaw := Engagement(m)
	engNorm := sigmoid((engRaw - engagementCenter) / engagementScale)
	velNorm := ViewVelocity(m.ViewVelocity)
	rec := Recency(it.CreatedAt, e.now(), e.halfLife)
	kw := KeywordRelevance(it.Title, it.Text, e.keywords)
	inv := Investability(m.Investable)

	w := e.weights
	score := w.Engagement*engNorm +
		w.Recency*rec +
		w.Keyword*kw +
		w.ViewVelocity*velNorm +
		w.Investable*inv

	return clamp01(score), domain.ScoreBreakdown{
		EngagementRaw:    engRaw,
		EngagementNorm:   engNorm,
		ViewVelocityNorm: velNorm,
		Recency:          rec,
		Keyword:          kw,
		Investable:       inv,
		Weights:          w,
	}
}

// Engagement is the weighted log1p sum of points, comments, shares and views. Each
// signal takes the first non-zero alias.
func Engagement(m domain.Metrics) float64 {
	points := firstOf(m.Points, m.Likes, m.Upvotes)
	comments := firstOf(m.Comments, m.Replies)
	shares := firstOf(m.Retweets, m.Shares)
	views := firstOf(m.Views)

	return 0.45*safeLog1p(points) +
		0.25*safeLog1p(comments) +
		0.15*safeLog1p(shares) +
		0.15*safeLog1p(views)
}

// ViewVelocity keeps values already in [0,1] and squashes larger rates.
func ViewVelocity(v domain.Number) float64 {
	if !v.Valid || math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
		return 0
	}
	if v.Value >= 0 && v.Value <= 1 {
		return v.Value
	}
	return sigmoid((safeLog1p(v.Value) - velocityCenter) / velocityScale)
}

// Recency decays from 1 at age zero with the given half-life. Missing or malformed
// timestamps give 0; timestamps in the future count as age zero.
func Recency(createdAt string, now time.Time, halfLife time.Duration) float64 {
	created, ok := domain.ParseTimestamp(createdAt)
	if !ok || halfLife <= 0 {
		return 0
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * (age.Hours() / halfLife.Hours()))
}

// KeywordRelevance is the share of keywords found case-insensitively in title and text.
func KeywordRelevance(title, text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	blob := strings.ToLower(title + "\n" + text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(blob, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// Investability is 1 when any mapped vehicle is public, 0.6 when any mapping exists.
func Investability(entries []domain.InvestableEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.Status()), "public") {
			return investablePublic
		}
	}
	return investableAny
}

func firstOf(values ...domain.Number) float64 {
	for _, v := range values {
		if v.Valid && v.Value != 0 {
			return v.Value
		}
	}
	return 0
}

func safeLog1p(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	return math.Log1p(x)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
