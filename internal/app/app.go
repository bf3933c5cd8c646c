package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/enrich"
	"SignalScanner/internal/infrastructure/httpapi"
	"SignalScanner/internal/infrastructure/notify"
	"SignalScanner/internal/infrastructure/parser"
	"SignalScanner/internal/infrastructure/report"
	"SignalScanner/internal/infrastructure/scheduler"
	"SignalScanner/internal/infrastructure/storage"
	"SignalScanner/internal/logging"
	"SignalScanner/internal/scanner"
	"SignalScanner/internal/scoring"
	"SignalScanner/internal/telemetry"
	"SignalScanner/internal/usecase"
	"SignalScanner/internal/vision"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Store
	registry *scanner.Registry
	source   *parser.StrategySource
	enricher *enrich.Enricher
	scorer   *scoring.Engine
	metrics  *telemetry.Metrics
}

// New opens the store and builds every collector and pass from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, storage.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN},
		logging.Component(baseLogger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	metrics := telemetry.New(nil)

	brands, err := enrich.LoadLines(cfg.Enrichment.BrandsFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load brands: %w", err)
	}
	investable, err := enrich.LoadInvestableMap(cfg.Enrichment.InvestableMap)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load investable map: %w", err)
	}
	keywords, err := enrich.LoadLines(cfg.Scoring.KeywordsFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	registry := newRegistry(cfg.Sources, store, metrics, baseLogger)

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		registry: registry,
		source:   parser.NewStrategySource(registry, logging.Component(baseLogger, "source")),
		enricher: enrich.New(enrich.Options{
			Brands:     brands,
			Investable: investable,
			Overwrite:  cfg.Enrichment.Overwrite,
		}, logging.Component(baseLogger, "enrich")),
		scorer:  scoring.New(scoring.WithKeywords(keywords)),
		metrics: metrics,
	}, nil
}

func newRegistry(cfg config.SourcesConfig, store *storage.Store, metrics *telemetry.Metrics, logger *slog.Logger) *scanner.Registry {
	fetcher := func(name string) *parser.Fetcher {
		return parser.NewFetcher(nil, parser.FetcherOptions{
			Timeout:   cfg.Timeout,
			RPS:       cfg.RPS,
			UserAgent: cfg.UserAgent,
			Name:      name,
		})
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewHNCollector(fetcher("hn"), parser.HNOptions{
		BaseURL: cfg.HN.BaseURL,
		Kind:    cfg.HN.Kind,
		Limit:   cfg.HN.Limit,
	}, logging.Component(logger, "collector.hn")))
	registry.Register(parser.NewRSSCollector(fetcher("rss"), cfg.RSS.Feeds, cfg.RSS.Limit,
		logging.Component(logger, "collector.rss")))
	registry.Register(parser.NewRedditCollector(fetcher("reddit"), cfg.Reddit.BaseURL, cfg.Reddit.Subreddits,
		cfg.Reddit.Limit, logging.Component(logger, "collector.reddit")))
	registry.Register(parser.NewXSeedCollector(cfg.X.SeedFile, logging.Component(logger, "collector.x")))

	if cfg.TikTok.Page.Enabled {
		registry.Register(parser.NewPageCollector(fetcher("tiktok"), parser.PageOptions{
			BaseURL:     cfg.TikTok.Page.BaseURL,
			Locale:      cfg.TikTok.Page.Locale,
			MaxVideos:   cfg.TikTok.Page.MaxVideos,
			Keywords:    cfg.TikTok.Keywords,
			Rotator:     store,
			OnExtractor: metrics.Extractor,
		}, logging.Component(logger, "collector.tiktok")))
	} else {
		registry.Register(parser.NewTikTokSeedCollector(cfg.TikTok.SeedFile, cfg.TikTok.Keywords, store,
			logging.Component(logger, "collector.tiktok")))
	}
	return registry
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// SourceNames lists registered collectors.
func (a *Application) SourceNames() []string {
	return a.registry.Names()
}

// Pipeline builds the orchestrator. An empty channel builds one without an alert sender.
func (a *Application) Pipeline(channel string) (*usecase.Pipeline, error) {
	deps := usecase.PipelineDeps{
		Source:     a.source,
		Repository: a.store,
		Enricher:   a.enricher,
		Scorer:     a.scorer,
		Metrics:    a.metrics,
		Logger:     logging.Component(a.logger, "pipeline"),
	}
	if channel != "" {
		sender, err := notify.Select(a.cfg.Notifications, channel)
		if err != nil {
			return nil, err
		}
		deps.Sender = sender
	}
	return usecase.NewPipeline(deps), nil
}

// CycleOptions derives cycle settings from the scheduler section.
func (a *Application) CycleOptions(sources []string) usecase.CycleOptions {
	if len(sources) == 0 {
		sources = a.cfg.Sources.Enabled
	}
	return usecase.CycleOptions{
		Sources:    sources,
		ScoreLimit: a.cfg.Scheduler.ScoreLimit,
		MinScore:   a.cfg.Scheduler.MinScore,
		TopK:       a.cfg.Scheduler.TopK,
	}
}

// EnrichVision runs one vision batch with the configured provider.
func (a *Application) EnrichVision(ctx context.Context, vcfg config.VisionConfig, overwrite bool) (int, error) {
	provider, err := vision.NewProvider(vcfg)
	if err != nil {
		return 0, err
	}
	batch := vision.NewBatch(a.store, provider, logging.Component(a.logger, "vision"))
	n, err := batch.Run(ctx, vision.BatchOptions{
		Source:    domain.Source(vcfg.Source),
		Limit:     vcfg.Limit,
		MaxImages: vcfg.MaxImages,
		Overwrite: overwrite,
	})
	if err != nil {
		a.metrics.StageError(telemetry.StageVision, vcfg.Source)
	}
	return n, err
}

// Export writes the top items to report files.
func (a *Application) Export(ctx context.Context, outDir string, limit int, minScore float64) ([]string, error) {
	items, err := a.store.TopItems(ctx, limit, &minScore)
	if err != nil {
		return nil, fmt.Errorf("load top items: %w", err)
	}
	paths, err := report.NewExporter(outDir, logging.Component(a.logger, "report")).Export(items, time.Now())
	if err != nil {
		a.metrics.StageError(telemetry.StageExport, "")
	}
	return paths, err
}

// RunDaemon runs cycles on the configured interval until ctx is cancelled.
func (a *Application) RunDaemon(ctx context.Context, opts usecase.CycleOptions, channel string, interval time.Duration) error {
	pipeline, err := a.Pipeline(channel)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = a.cfg.Scheduler.Interval
	}

	driver := scheduler.NewIntervalScheduler(interval, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, pipeline, opts, logging.Component(a.logger, "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("daemon running", "interval", interval, "sources", opts.Sources)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Serve runs the dashboard API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	srv := httpapi.NewServer(a.store, a.metrics.Handler(), logging.Component(a.logger, "http"))
	return srv.ListenAndServe(ctx, addr)
}
