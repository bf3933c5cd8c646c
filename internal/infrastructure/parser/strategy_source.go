package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/scanner"
)

// StrategySource runs registered collectors by name.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires the collector registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// Collect runs each named collector in order. A failing or unknown source is recorded
// and the remaining sources still run.
func (s *StrategySource) Collect(ctx context.Context, names []string) (domain.Batch, error) {
	if s.registry == nil {
		return domain.Batch{}, fmt.Errorf("collector registry is not configured")
	}

	batch := domain.Batch{PerSource: map[string]int{}}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		collector, err := s.registry.Resolve(name)
		if err != nil {
			batch.Failures = append(batch.Failures, domain.SourceFailure{Source: name, Err: err})
			continue
		}

		s.debug("collect source", "source", collector.Name())
		items, err := collector.Fetch(ctx)
		if err != nil {
			batch.Failures = append(batch.Failures, domain.SourceFailure{Source: string(collector.Name()), Err: err})
		}

		for i := range items {
			if items[i].Source == "" {
				items[i].Source = collector.Name()
			}
		}
		batch.PerSource[string(collector.Name())] += len(items)
		batch.Items = append(batch.Items, items...)
	}

	s.debug("collect done", "total_items", len(batch.Items), "failures", len(batch.Failures))
	return batch, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
