package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/telemetry"
)

const defaultScoreLimit = 200

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ItemSource
	Repository ports.ItemRepository
	Enricher   ports.Enricher
	Scorer     ports.Scorer
	Sender     ports.AlertSender
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Pipeline implements the ingest, score and alert workflow.
type Pipeline struct {
	source     ports.ItemSource
	repository ports.ItemRepository
	enricher   ports.Enricher
	scorer     ports.Scorer
	sender     ports.AlertSender
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// CycleOptions configures one RunCycle.
type CycleOptions struct {
	Sources    []string
	ScoreLimit int
	MinScore   float64
	TopK       int
}

// CycleReport summarises one RunCycle.
type CycleReport struct {
	Fetched  int
	Upserted int
	Scored   int
	Alerted  int
	Failures []domain.SourceFailure
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		repository: deps.Repository,
		enricher:   deps.Enricher,
		scorer:     deps.Scorer,
		sender:     deps.Sender,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Ingest collects from the named sources, enriches and upserts. Per-source failures are
// logged and reported in the batch; only a persistence failure is returned.
func (p *Pipeline) Ingest(ctx context.Context, sources []string) (int, domain.Batch, error) {
	if p.source == nil || p.repository == nil {
		return 0, domain.Batch{}, fmt.Errorf("ingest: source and repository are required")
	}

	batch, err := p.source.Collect(ctx, sources)
	if err != nil {
		p.metrics.StageError(telemetry.StageCollect, "")
		return 0, batch, fmt.Errorf("collect sources: %w", err)
	}

	for src, n := range batch.PerSource {
		p.metrics.Fetched(src, n)
		p.info("fetched", "source", src, "items", n)
	}
	for _, f := range batch.Failures {
		p.metrics.StageError(telemetry.StageCollect, f.Source)
		p.warn("source failed", "source", f.Source, "stage", telemetry.StageCollect, "err", f.Err)
	}

	items := batch.Items
	if p.enricher != nil {
		items = p.enricher.EnrichAll(items)
	}

	n, err := p.repository.Upsert(ctx, items)
	if err != nil {
		p.metrics.StageError(telemetry.StageUpsert, "")
		return 0, batch, fmt.Errorf("upsert items: %w", err)
	}
	p.metrics.Upserted(n)
	p.info("upserted", "items", n)
	return n, batch, nil
}

// Score scores up to limit unscored rows and writes the results back.
func (p *Pipeline) Score(ctx context.Context, limit int) (int, error) {
	if p.repository == nil || p.scorer == nil {
		return 0, fmt.Errorf("score: repository and scorer are required")
	}
	if limit <= 0 {
		limit = defaultScoreLimit
	}

	items, err := p.repository.FetchUnscored(ctx, limit)
	if err != nil {
		p.metrics.StageError(telemetry.StageScore, "")
		return 0, fmt.Errorf("fetch unscored: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	n, err := p.repository.UpdateScores(ctx, p.scorer.ScoreAll(items))
	if err != nil {
		p.metrics.StageError(telemetry.StageScore, "")
		return 0, fmt.Errorf("update scores: %w", err)
	}
	p.metrics.Scored(n)
	p.info("scored", "items", n)
	return n, nil
}

// Alert sends the topK items scoring at least minScore. It returns how many were sent.
func (p *Pipeline) Alert(ctx context.Context, minScore float64, topK int) (int, error) {
	if p.repository == nil || p.sender == nil {
		return 0, fmt.Errorf("alert: repository and sender are required")
	}

	items, err := p.repository.TopItems(ctx, topK, &minScore)
	if err != nil {
		p.metrics.StageError(telemetry.StageAlert, "")
		return 0, fmt.Errorf("load top items: %w", err)
	}
	if len(items) == 0 {
		p.debug("nothing to alert", "min_score", minScore)
		return 0, nil
	}

	if err := p.sender.Send(ctx, items); err != nil {
		p.metrics.StageError(telemetry.StageAlert, "")
		return 0, fmt.Errorf("send alert: %w", err)
	}
	p.info("alerted", "channel", p.sender.Channel(), "items", len(items))
	return len(items), nil
}

// RunCycle runs ingest, score and alert in order. A failing stage stops the cycle.
func (p *Pipeline) RunCycle(ctx context.Context, opts CycleOptions) (CycleReport, error) {
	start := p.now()
	defer func() { p.metrics.ObserveCycle(p.now().Sub(start)) }()

	var report CycleReport

	n, batch, err := p.Ingest(ctx, opts.Sources)
	report.Fetched = len(batch.Items)
	report.Failures = batch.Failures
	if err != nil {
		return report, err
	}
	report.Upserted = n

	if report.Scored, err = p.Score(ctx, opts.ScoreLimit); err != nil {
		return report, err
	}

	if p.sender != nil {
		if report.Alerted, err = p.Alert(ctx, opts.MinScore, opts.TopK); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
