package ports

import (
	"context"
	"time"

	"SignalScanner/internal/domain"
)

// Collector pulls normalized items from one upstream source.
type Collector interface {
	Name() domain.Source
	Fetch(ctx context.Context) ([]domain.Item, error)
}

// ItemSource runs a set of collectors by name.
type ItemSource interface {
	Collect(ctx context.Context, names []string) (domain.Batch, error)
}

// ItemRepository persists items keyed by identity and serves ranked reads.
type ItemRepository interface {
	Upsert(ctx context.Context, items []domain.Item) (int, error)
	UpdateScores(ctx context.Context, items []domain.Item) (int, error)
	FetchUnscored(ctx context.Context, limit int) ([]domain.Item, error)
	TopItems(ctx context.Context, limit int, minScore *float64) ([]domain.Item, error)
	FetchRecent(ctx context.Context, limit int, source domain.Source) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (domain.Item, error)
	MergeMetrics(ctx context.Context, id, key string, patch map[string]any, overwrite bool) (bool, error)
}

// KeywordRotator hands out the next keyword of a named group.
type KeywordRotator interface {
	NextKeyword(ctx context.Context, group string, keywords []string) (string, error)
}

// Enricher derives metrics from item text before persistence.
type Enricher interface {
	EnrichAll(items []domain.Item) []domain.Item
}

// Scorer attaches a score and breakdown to items.
type Scorer interface {
	ScoreAll(items []domain.Item) []domain.Item
}

// VisionProvider analyses an item and its screenshots.
type VisionProvider interface {
	Name() string
	Enrich(ctx context.Context, item domain.Item, images []domain.Image) (domain.VisionResult, error)
}

// AlertSender delivers ranked items to a channel.
type AlertSender interface {
	Channel() string
	Send(ctx context.Context, items []domain.Item) error
}

// Exporter writes ranked items into report files.
type Exporter interface {
	Export(items []domain.Item, now time.Time) ([]string, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(context.Context, time.Time)) error
	Stop(ctx context.Context) error
}
