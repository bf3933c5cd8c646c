package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// idLength is the number of hex characters kept from the identity hash.
const idLength = 24

// Source tags the origin of an item.
type Source string

const (
	SourceTikTok Source = "tiktok"
	SourceHN     Source = "hn"
	SourceRSS    Source = "rss"
	SourceReddit Source = "reddit"
	SourceX      Source = "x_mock"
)

// Item is the normalized unit of work shared by collectors, scoring and storage.
type Item struct {
	ID             string          `json:"item_id"`
	Source         Source          `json:"source"`
	URL            string          `json:"url"`
	Title          string          `json:"title"`
	Text           string          `json:"text,omitempty"`
	Metrics        Metrics         `json:"metrics"`
	Score          *float64        `json:"score"`
	ScoreBreakdown *ScoreBreakdown `json:"score_breakdown"`
	CreatedAt      string          `json:"created_at,omitempty"`
	FetchedAt      time.Time       `json:"fetched_at"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// StableID hashes the parts into a deterministic identifier.
func StableID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:idLength]
}

// NewItem builds an item whose identity is derived from source, url and title.
func NewItem(source Source, url, title string) Item {
	return Item{
		ID:     StableID(string(source), url, title),
		Source: source,
		URL:    url,
		Title:  title,
	}
}

// Blob is the searchable text of an item: title and text separated by a newline.
func (it Item) Blob() string {
	return it.Title + "\n" + it.Text
}

// Scored reports whether the scoring pass has attached a score.
func (it Item) Scored() bool {
	return it.Score != nil
}

// Weights is the weight table used to combine sub-scores.
type Weights struct {
	Engagement   float64 `json:"engagement"`
	Recency      float64 `json:"recency"`
	Keyword      float64 `json:"keyword"`
	ViewVelocity float64 `json:"view_velocity"`
	Investable   float64 `json:"investable"`
}

// ScoreBreakdown explains how a score was computed.
type ScoreBreakdown struct {
	EngagementRaw    float64 `json:"engagement_raw"`
	EngagementNorm   float64 `json:"engagement_norm"`
	ViewVelocityNorm float64 `json:"view_velocity_norm"`
	Recency          float64 `json:"recency"`
	Keyword          float64 `json:"keyword"`
	Investable       float64 `json:"investable"`
	Weights          Weights `json:"weights"`
}
