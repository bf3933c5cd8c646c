package enrich

import (
	"SignalScanner/internal/domain"
)

// MergePolicy decides how a patch value combines with an existing metrics value.
type MergePolicy int

const (
	// KeepExisting writes the patch value only when the field is absent.
	KeepExisting MergePolicy = iota
	// Overwrite replaces the field whenever the patch carries a value.
	Overwrite
	// DeepMergeLists appends patch entries that are not yet present, keeping order.
	DeepMergeLists
)

func (p MergePolicy) String() string {
	switch p {
	case KeepExisting:
		return "keep_existing"
	case Overwrite:
		return "overwrite"
	case DeepMergeLists:
		return "deep_merge_lists"
	default:
		return "unknown"
	}
}

// Field names understood by Merge.
const (
	FieldTickers        = "tickers"
	FieldBrands         = "brands"
	FieldInvestable     = "investable"
	FieldRelatedTickers = "related_tickers"
	FieldKeyEntities    = "key_entities"
	FieldContextSummary = "context_summary"
	FieldWhySpreading   = "why_spreading"
	FieldRiskFlags      = "risk_flags"
	FieldEnrichMethod   = "enrich_method"
)

// FieldPolicies maps a field name to its policy. Fields not listed use KeepExisting.
type FieldPolicies map[string]MergePolicy

func (fp FieldPolicies) policy(field string) MergePolicy {
	if p, ok := fp[field]; ok {
		return p
	}
	return KeepExisting
}

// OfflinePolicies is used by the regex enrichment pass. Deterministic extractions are
// replaced, interpretive fields are only filled when absent.
func OfflinePolicies() FieldPolicies {
	return FieldPolicies{
		FieldTickers:        Overwrite,
		FieldBrands:         Overwrite,
		FieldInvestable:     Overwrite,
		FieldRelatedTickers: DeepMergeLists,
		FieldKeyEntities:    KeepExisting,
		FieldContextSummary: KeepExisting,
		FieldWhySpreading:   KeepExisting,
		FieldRiskFlags:      KeepExisting,
		FieldEnrichMethod:   KeepExisting,
	}
}

// OverwritePolicies replaces every field carried by the patch.
func OverwritePolicies() FieldPolicies {
	fp := FieldPolicies{}
	for k := range OfflinePolicies() {
		fp[k] = Overwrite
	}
	return fp
}

// Merge applies patch onto dst field by field. Absent patch fields never clear dst.
func Merge(dst *domain.Metrics, patch domain.Metrics, policies FieldPolicies) {
	dst.Tickers = mergeStrings(dst.Tickers, patch.Tickers, policies.policy(FieldTickers))
	dst.Brands = mergeStrings(dst.Brands, patch.Brands, policies.policy(FieldBrands))
	dst.KeyEntities = mergeStrings(dst.KeyEntities, patch.KeyEntities, policies.policy(FieldKeyEntities))
	dst.RelatedTickers = mergeRelated(dst.RelatedTickers, patch.RelatedTickers, policies.policy(FieldRelatedTickers))
	dst.Investable = mergeInvestable(dst.Investable, patch.Investable, policies.policy(FieldInvestable))

	dst.ContextSummary = mergePtr(dst.ContextSummary, patch.ContextSummary, policies.policy(FieldContextSummary))
	dst.WhySpreading = mergePtr(dst.WhySpreading, patch.WhySpreading, policies.policy(FieldWhySpreading))
	dst.RiskFlags = mergePtr(dst.RiskFlags, patch.RiskFlags, policies.policy(FieldRiskFlags))

	if patch.EnrichMethod != "" {
		if dst.EnrichMethod == "" || policies.policy(FieldEnrichMethod) == Overwrite {
			dst.EnrichMethod = patch.EnrichMethod
		}
	}
}

func mergePtr[T any](dst, patch *T, p MergePolicy) *T {
	if patch == nil {
		return dst
	}
	if dst == nil || p == Overwrite {
		v := *patch
		return &v
	}
	return dst
}

func mergeStrings(dst, patch []string, p MergePolicy) []string {
	return mergeList(dst, patch, p, func(s string) string { return s })
}

func mergeRelated(dst, patch []domain.RelatedTicker, p MergePolicy) []domain.RelatedTicker {
	return mergeList(dst, patch, p, func(r domain.RelatedTicker) string { return r.Ticker })
}

func mergeInvestable(dst, patch []domain.InvestableEntry, p MergePolicy) []domain.InvestableEntry {
	return mergeList(dst, patch, p, func(e domain.InvestableEntry) string {
		return e.Brand() + "|" + e.Ticker()
	})
}

func mergeList[T any](dst, patch []T, p MergePolicy, key func(T) string) []T {
	if patch == nil {
		return dst
	}
	switch p {
	case Overwrite:
		return dedupe(append([]T(nil), patch...), key)
	case DeepMergeLists:
		merged := make([]T, 0, len(dst)+len(patch))
		merged = append(merged, dst...)
		merged = append(merged, patch...)
		return dedupe(merged, key)
	default:
		if dst != nil {
			return dst
		}
		return dedupe(append([]T(nil), patch...), key)
	}
}

// dedupe keeps the first occurrence of each key and drops entries with an empty key.
func dedupe[T any](in []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		k := key(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
