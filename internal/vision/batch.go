package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/infrastructure/storage"
	"SignalScanner/internal/ports"
)

// MetricsKey is the metrics field holding a vision result.
const MetricsKey = "llm_enrich"

// BatchOptions scopes one batch run.
type BatchOptions struct {
	Source    domain.Source
	Limit     int
	MaxImages int
	Overwrite bool
}

// Batch enriches recent items of a source that carry screenshots.
type Batch struct {
	repo     ports.ItemRepository
	provider ports.VisionProvider
	logger   *slog.Logger
	now      func() time.Time
	readFile func(string) ([]byte, error)
}

// NewBatch wires the repository and provider.
func NewBatch(repo ports.ItemRepository, provider ports.VisionProvider, logger *slog.Logger) *Batch {
	return &Batch{
		repo:     repo,
		provider: provider,
		logger:   logger,
		now:      time.Now,
		readFile: os.ReadFile,
	}
}

// Run returns the number of items whose metrics were updated.
func (b *Batch) Run(ctx context.Context, opts BatchOptions) (int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.MaxImages <= 0 || opts.MaxImages > MaxImages {
		opts.MaxImages = MaxImages
	}
	if opts.Source == "" {
		opts.Source = domain.SourceTikTok
	}

	// Many recent rows lack screenshots, so read well past the limit.
	items, err := b.repo.FetchRecent(ctx, max(200, opts.Limit*10), opts.Source)
	if err != nil {
		return 0, fmt.Errorf("fetch recent items: %w", err)
	}

	updated := 0
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if !opts.Overwrite && hasResult(it.Metrics) {
			continue
		}
		if len(it.Metrics.Screenshots) == 0 {
			continue
		}

		images := b.loadImages(it.Metrics.Screenshots, opts.MaxImages)
		result, err := b.provider.Enrich(ctx, it, images)
		if err != nil {
			b.warn("vision provider failed", "item_id", it.ID, "provider", b.provider.Name(), "err", err)
			result = b.failure(images, err)
		}

		patch, err := toPatch(result)
		if err != nil {
			return updated, fmt.Errorf("encode vision result: %w", err)
		}
		if opts.Overwrite && result.Error == "" {
			// clear an error left by an earlier failed pass
			patch["error"] = nil
		}

		ok, err := b.repo.MergeMetrics(ctx, it.ID, MetricsKey, patch, opts.Overwrite)
		if errors.Is(err, storage.ErrNotFound) {
			b.warn("item vanished before merge", "item_id", it.ID)
			continue
		}
		if err != nil {
			return updated, fmt.Errorf("merge vision result: %w", err)
		}
		if ok {
			updated++
		}
		if updated >= opts.Limit {
			break
		}
	}

	b.debug("vision batch done", "updated", updated, "candidates", len(items))
	return updated, nil
}

func (b *Batch) loadImages(paths []string, n int) []domain.Image {
	if len(paths) > n {
		paths = paths[:n]
	}
	images := make([]domain.Image, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		data, err := b.readFile(p)
		if err != nil {
			b.debug("screenshot unreadable", "path", p, "err", err)
		}
		images = append(images, domain.Image{Path: p, Data: data})
	}
	return images
}

func (b *Batch) failure(images []domain.Image, err error) domain.VisionResult {
	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.Path)
	}
	return domain.VisionResult{
		Provider:   b.provider.Name(),
		EnrichedAt: domain.FormatTimestamp(b.now()),
		ImagesUsed: paths,
		Error:      err.Error(),
	}
}

func hasResult(m domain.Metrics) bool {
	raw, ok := m.Lookup(MetricsKey)
	return ok && !domain.IsEmptyJSON(raw)
}

func toPatch(res domain.VisionResult) (map[string]any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, err
	}
	return patch, nil
}

func (b *Batch) debug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Batch) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
