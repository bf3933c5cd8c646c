package enrich

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	cashtagExpr  = regexp.MustCompile(`\$([A-Z]{1,6})\b`)
	exchangeExpr = regexp.MustCompile(`(?i)\b(?:NASDAQ|NYSE)\s*:\s*([A-Z]{1,6})\b`)

	adExpr      = regexp.MustCompile(`\B#ad\b|\bsponsored\b|paid partnership|promo code|use code\b`)
	medicalExpr = regexp.MustCompile(`\bcure\b|\btreat\b|\bdiagnos\w*\b|\bdoctor\b|\bmedic\w*\b|\bvaccine\b|\bivermectin\b|\bmiracle\b`)

	viralExpr   = regexp.MustCompile(`\bviral\b|\btrend\w*\b|\bblowing up\b|\beveryone\s+is\s+talking\b`)
	productExpr = regexp.MustCompile(`\bhaul\b|\bunboxing\b|\breview\b|\bdupe\b`)
	dealExpr    = regexp.MustCompile(`\bdeal\b|\bsale\b|\bdiscount\b|\bcoupon\b|\bpromo\b|\bback in stock\b`)
)

const (
	summaryMaxRunes = 280
	maxKeyEntities  = 12
)

// ExtractTickers returns cashtags ($ABCD) and exchange-qualified symbols
// ("NASDAQ: ABCD"), upper-cased, de-duplicated and sorted.
func ExtractTickers(text string) []string {
	set := map[string]struct{}{}
	for _, m := range cashtagExpr.FindAllStringSubmatch(text, -1) {
		set[m[1]] = struct{}{}
	}
	for _, m := range exchangeExpr.FindAllStringSubmatch(text, -1) {
		set[strings.ToUpper(m[1])] = struct{}{}
	}
	return sortedKeys(set)
}

// ExtractBrands returns the configured brands contained in text, case-insensitively.
func ExtractBrands(text string, brands []string) []string {
	lower := strings.ToLower(text)
	set := map[string]struct{}{}
	for _, b := range brands {
		if b == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(b)) {
			set[b] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// IsSponsored flags ad/sponsorship language.
func IsSponsored(text string) bool {
	return adExpr.MatchString(strings.ToLower(text))
}

// IsMedicalClaim flags medical/health claim language.
func IsMedicalClaim(text string) bool {
	return medicalExpr.MatchString(strings.ToLower(text))
}

// WhySpreading guesses the propagation mechanism; empty when nothing matches.
func WhySpreading(text string) string {
	t := strings.ToLower(text)
	switch {
	case viralExpr.MatchString(t):
		return "Viral/trend propagation across the feed."
	case productExpr.MatchString(t):
		return "Product content (haul/review/dupe) is easy to remix and share."
	case dealExpr.MatchString(t):
		return "People are sharing it as a deal / availability signal."
	}
	return ""
}

// ContextSummary keeps the first two sentences, capped at 280 runes.
func ContextSummary(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	sentences := splitSentences(text)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	out := strings.Join(sentences, " ")
	if utf8.RuneCountInString(out) > summaryMaxRunes {
		out = string([]rune(out)[:summaryMaxRunes])
	}
	return out
}

// splitSentences splits on whitespace runs that follow '.', '!' or '?'.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) && (prev == '.' || prev == '!' || prev == '?') {
			out = append(out, string(runes[start:i]))
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			start = i
			if i < len(runes) {
				prev = runes[i]
			}
			continue
		}
		prev = runes[i]
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
