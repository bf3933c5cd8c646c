// Package enrich derives tickers, brands, investable mappings and advisory flags from an
// item's text and folds them into its metrics without clobbering earlier passes.
package enrich

import (
	"fmt"
	"log/slog"

	"SignalScanner/internal/domain"
)

const (
	textTickerConfidence       = 0.35
	investableTickerConfidence = 0.55

	methodRegex = "regex"
)

// Options configures the offline enricher.
type Options struct {
	Brands     []string
	Investable InvestableMap
	// Overwrite replaces interpretive fields written by earlier passes.
	Overwrite bool
}

// Enricher runs the offline (regex/keyword) enrichment pass.
type Enricher struct {
	brands     []string
	investable InvestableMap
	policies   FieldPolicies
	logger     *slog.Logger
}

// New builds an offline enricher.
func New(opts Options, logger *slog.Logger) *Enricher {
	policies := OfflinePolicies()
	if opts.Overwrite {
		policies = OverwritePolicies()
	}
	if opts.Investable == nil {
		opts.Investable = InvestableMap{}
	}
	return &Enricher{
		brands:     opts.Brands,
		investable: opts.Investable,
		policies:   policies,
		logger:     logger,
	}
}

// EnrichAll enriches items in place order and returns them.
func (e *Enricher) EnrichAll(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, e.Enrich(it))
	}
	e.debug("offline enrichment done", "items", len(out))
	return out
}

// Enrich returns a copy of it with derived fields merged into its metrics.
func (e *Enricher) Enrich(it domain.Item) domain.Item {
	patch := e.Patch(it)
	metrics := it.Metrics.Clone()
	Merge(&metrics, patch, e.policies)
	it.Metrics = metrics
	return it
}

// Patch computes the offline enrichment fields for an item without touching it.
func (e *Enricher) Patch(it domain.Item) domain.Metrics {
	blob := it.Blob()
	tickers := ExtractTickers(blob)
	brandHits := ExtractBrands(blob, e.brands)

	var patch domain.Metrics
	if len(tickers) > 0 {
		patch.Tickers = tickers
	}
	if len(brandHits) > 0 {
		patch.Brands = brandHits
	}

	entities := make([]string, 0, len(brandHits)+len(tickers))
	entities = append(entities, brandHits...)
	entities = append(entities, tickers...)
	entities = dedupe(entities, func(s string) string { return s })
	if len(entities) > maxKeyEntities {
		entities = entities[:maxKeyEntities]
	}
	patch.KeyEntities = entities

	related := make([]domain.RelatedTicker, 0, len(tickers))
	for _, tk := range tickers {
		related = append(related, domain.RelatedTicker{
			Ticker:     tk,
			Confidence: textTickerConfidence,
			Reason:     "Mentioned in text.",
		})
	}

	for _, brand := range brandHits {
		entry, ok := e.investable.Lookup(brand)
		if !ok {
			continue
		}
		patch.Investable = append(patch.Investable, entry)
		if tk := entry.Ticker(); tk != "" {
			label := entry.Brand()
			if label == "" {
				label = "brand"
			}
			related = append(related, domain.RelatedTicker{
				Ticker:     tk,
				Confidence: investableTickerConfidence,
				Reason:     fmt.Sprintf("Investable map: %s.", label),
			})
		}
	}
	patch.RelatedTickers = related

	if summary := ContextSummary(blob); summary != "" {
		patch.ContextSummary = domain.StringPtr(summary)
	}
	if why := WhySpreading(blob); why != "" {
		patch.WhySpreading = domain.StringPtr(why)
	}
	patch.RiskFlags = &domain.RiskFlags{
		AdSponsored:  IsSponsored(blob),
		MedicalClaim: IsMedicalClaim(blob),
		Notes:        "Heuristic flags (offline).",
	}
	patch.EnrichMethod = methodRegex

	return patch
}

func (e *Enricher) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
