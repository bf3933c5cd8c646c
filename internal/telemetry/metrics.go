// Package telemetry exposes pipeline counters and timings as Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages used as label values.
const (
	StageCollect = "collect"
	StageEnrich  = "enrich"
	StageUpsert  = "upsert"
	StageScore   = "score"
	StageAlert   = "alert"
	StageVision  = "vision"
	StageExport  = "export"
)

// Metrics holds every collector the pipeline updates. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	ItemsFetched  *prometheus.CounterVec
	ItemsUpserted prometheus.Counter
	ItemsScored   prometheus.Counter
	StageErrors   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Extractors    *prometheus.CounterVec
}

// New registers the pipeline metrics on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		ItemsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscanner_items_fetched_total",
				Help: "Items returned by collectors, by source",
			},
			[]string{"source"},
		),
		ItemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalscanner_items_upserted_total",
			Help: "Rows written by the upsert stage",
		}),
		ItemsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalscanner_items_scored_total",
			Help: "Rows whose score was updated",
		}),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscanner_stage_errors_total",
				Help: "Failures by pipeline stage and source",
			},
			[]string{"stage", "source"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalscanner_cycle_duration_seconds",
			Help:    "Wall time of one ingest, score and alert cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		Extractors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscanner_page_extractor_total",
				Help: "Page extractor outcomes",
			},
			[]string{"extractor", "result"},
		),
	}
	reg.MustRegister(m.ItemsFetched, m.ItemsUpserted, m.ItemsScored, m.StageErrors, m.CycleDuration, m.Extractors)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Fetched counts collected items.
func (m *Metrics) Fetched(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsFetched.WithLabelValues(source).Add(float64(n))
}

// Upserted counts persisted rows.
func (m *Metrics) Upserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsUpserted.Add(float64(n))
}

// Scored counts rows that received a score.
func (m *Metrics) Scored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScored.Add(float64(n))
}

// StageError records one failure. Source may be empty for cross-source stages.
func (m *Metrics) StageError(stage, source string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage, source).Inc()
}

// ObserveCycle records a cycle duration.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}

// Extractor records one page extractor outcome. Its signature matches the page
// collector's observer hook.
func (m *Metrics) Extractor(name string, ok bool) {
	if m == nil {
		return
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	m.Extractors.WithLabelValues(name, result).Inc()
}
