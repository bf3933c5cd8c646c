package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"SignalScanner/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     CycleOptions
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts CycleOptions, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, logger: logger}
}

// Start registers the cycle with the driver. A failed cycle is logged and the next
// trigger still runs.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, s.runCycle)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context, trigger time.Time) {
	if ctx.Err() != nil {
		return
	}

	log := s.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("cycle_id", uuid.NewString())
	log.Info("cycle started", "trigger", trigger)

	report, err := s.pipeline.RunCycle(ctx, s.opts)
	if err != nil {
		log.Error("cycle failed", "err", err, "fetched", report.Fetched, "upserted", report.Upserted)
		return
	}
	log.Info("cycle finished",
		"fetched", report.Fetched,
		"upserted", report.Upserted,
		"scored", report.Scored,
		"alerted", report.Alerted,
		"failed_sources", len(report.Failures),
	)
}
