package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SignalScanner/internal/app"
	"SignalScanner/internal/config"
	"SignalScanner/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type session struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

// open loads configuration and builds the application for one command.
func (r *session) open(ctx context.Context) (*app.Application, error) {
	r.cfg = config.Load(r.configPath)
	r.logger = logging.New(r.cfg.Logging.Level)
	return app.New(ctx, r.cfg, r.logger)
}

func newRootCmd() *cobra.Command {
	rt := &session{}

	rootCmd := &cobra.Command{
		Use:           "signalscanner",
		Short:         "Collect, enrich, score and rank social and news items",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "Path to YAML config (defaults to SIGNAL_SCANNER_CONFIG)")

	rootCmd.AddCommand(
		sourcesCmd(rt),
		ingestCmd(rt),
		scoreCmd(rt),
		enrichVisionCmd(rt),
		alertCmd(rt),
		exportCmd(rt),
		runCmd(rt),
		serveCmd(rt),
	)
	return rootCmd
}

func sourcesCmd(rt *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect registered collectors",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered collector names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			for _, name := range application.SourceNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	return cmd
}

func ingestCmd(rt *session) *cobra.Command {
	var sources string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Collect from sources, enrich and upsert",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			pipeline, err := application.Pipeline("")
			if err != nil {
				return err
			}
			n, batch, err := pipeline.Ingest(cmd.Context(), splitList(sources))
			if err != nil {
				return err
			}
			for _, f := range batch.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "source %s failed: %v\n", f.Source, f.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d upserted=%d\n", len(batch.Items), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&sources, "sources", "tiktok,x_mock", "Comma-separated source names")
	return cmd
}

func scoreCmd(rt *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score unscored items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			pipeline, err := application.Pipeline("")
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = rt.cfg.Scheduler.ScoreLimit
			}
			n, err := pipeline.Score(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scored=%d\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to score (defaults to scheduler.scoreLimit)")
	return cmd
}

func enrichVisionCmd(rt *session) *cobra.Command {
	var (
		limit     int
		maxImages int
		provider  string
		source    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:     "enrich-vision",
		Aliases: []string{"enrich-llm"},
		Short:   "Enrich screenshot-bearing items with a vision provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			vcfg := rt.cfg.Vision
			if provider != "" {
				vcfg.Provider = provider
			}
			if source != "" {
				vcfg.Source = source
			}
			if limit > 0 {
				vcfg.Limit = limit
			}
			if maxImages > 0 {
				vcfg.MaxImages = maxImages
			}

			n, err := application.EnrichVision(cmd.Context(), vcfg, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enriched=%d provider=%s\n", n, vcfg.Provider)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items to enrich")
	cmd.Flags().IntVar(&maxImages, "max-images", 0, "Screenshots per item")
	cmd.Flags().StringVar(&provider, "provider", "", "stub, openai or internal")
	cmd.Flags().StringVar(&source, "source", "", "Source to enrich")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing results")
	return cmd
}

func alertCmd(rt *session) *cobra.Command {
	var (
		minScore float64
		topK     int
		channel  string
	)
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Send the top scored items to a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if channel == "" {
				channel = rt.cfg.Notifications.Channel
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = rt.cfg.Scheduler.MinScore
			}
			if topK <= 0 {
				topK = rt.cfg.Scheduler.TopK
			}

			pipeline, err := application.Pipeline(channel)
			if err != nil {
				return err
			}
			n, err := pipeline.Alert(cmd.Context(), minScore, topK)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alerted=%d\n", n)
			return nil
		},
	}
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum score (defaults to scheduler.minScore)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Maximum items to send")
	cmd.Flags().StringVar(&channel, "channel", "", "auto, stdout, telegram or discord")
	return cmd
}

func exportCmd(rt *session) *cobra.Command {
	var (
		outDir   string
		minScore float64
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write top items to JSON, CSV and Atom files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if outDir == "" {
				outDir = rt.cfg.Export.OutDir
			}
			if limit <= 0 {
				limit = rt.cfg.Export.Limit
			}

			paths, err := application.Export(cmd.Context(), outDir, limit, minScore)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum score")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items")
	return cmd
}

func runCmd(rt *session) *cobra.Command {
	var (
		sources string
		channel string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full ingest, score and alert cycle",
	}
	cmd.PersistentFlags().StringVar(&sources, "sources", "", "Comma-separated sources (defaults to sources.enabled)")
	cmd.PersistentFlags().StringVar(&channel, "channel", "", "Alert channel (defaults to notifications.channel)")

	once := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			pipeline, err := application.Pipeline(alertChannel(channel, rt.cfg))
			if err != nil {
				return err
			}
			report, err := pipeline.RunCycle(cmd.Context(), application.CycleOptions(splitList(sources)))
			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d upserted=%d scored=%d alerted=%d failures=%d\n",
				report.Fetched, report.Upserted, report.Scored, report.Alerted, len(report.Failures))
			return err
		},
	}

	var interval string
	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Run cycles on an interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			every := rt.cfg.Scheduler.Interval
			if interval != "" {
				if every, err = time.ParseDuration(interval); err != nil {
					return err
				}
			}
			return application.RunDaemon(cmd.Context(), application.CycleOptions(splitList(sources)),
				alertChannel(channel, rt.cfg), every)
		},
	}
	daemon.Flags().StringVar(&interval, "interval", "", "Cycle interval, e.g. 5m (defaults to scheduler.interval)")

	cmd.AddCommand(once, daemon)
	return cmd
}

func serveCmd(rt *session) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			rt.logger.Info("serving", "addr", firstNonEmpty(addr, rt.cfg.HTTP.Addr))
			return application.Serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http.addr)")
	return cmd
}

func alertChannel(flag string, cfg config.Config) string {
	return firstNonEmpty(flag, cfg.Notifications.Channel)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
