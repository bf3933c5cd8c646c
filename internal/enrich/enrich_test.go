package enrich

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/domain"
)

func TestExtractTickers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"AAPL", "TSLA"}, ExtractTickers("Loving $TSLA and NASDAQ: AAPL today"))
	assert.Equal(t, []string{"ANF"}, ExtractTickers("nyse:ANF up again, $ANF"))
	assert.Empty(t, ExtractTickers("no symbols, $toolong1234 and $lower"))
}

func TestExtractBrands(t *testing.T) {
	t.Parallel()

	brands := []string{"Stanley", "Liquid Death", "Nike", ""}
	got := ExtractBrands("my stanley cup next to a LIQUID DEATH can", brands)
	assert.Equal(t, []string{"Liquid Death", "Stanley"}, got)
}

func TestRiskHeuristics(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSponsored("new drop #ad"))
	assert.True(t, IsSponsored("Paid Partnership with a brand"))
	assert.False(t, IsSponsored("#adventure time"))
	assert.True(t, IsMedicalClaim("This miracle tea will cure it"))
	assert.False(t, IsMedicalClaim("weekend haul"))
}

func TestWhySpreading(t *testing.T) {
	t.Parallel()

	assert.Contains(t, WhySpreading("this is going viral"), "Viral")
	assert.Contains(t, WhySpreading("honest review of the dupe"), "Product content")
	assert.Contains(t, WhySpreading("back in stock at target"), "deal")
	assert.Empty(t, WhySpreading("quiet news day"))
}

func TestContextSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "One. Two!", ContextSummary("One. Two! Three? Four."))
	assert.Equal(t, "", ContextSummary("   "))

	long := strings.Repeat("word ", 100)
	assert.Len(t, []rune(ContextSummary(long)), summaryMaxRunes)
}

func TestParseInvestableMap(t *testing.T) {
	t.Parallel()

	csv := "Brand,Status,Ticker,Parent\n" +
		"Abercrombie, public, ANF ,\n" +
		",public,XXX,\n" +
		"Liquid Death,private,,\n"
	m, err := ParseInvestableMap(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, m, 2)

	row, ok := m.Lookup("ABERCROMBIE")
	require.True(t, ok)
	assert.Equal(t, "ANF", row.Ticker())
	assert.Equal(t, "public", row.Status())

	_, ok = m.Lookup("")
	assert.False(t, ok)
}

func TestLoadersToleratesMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lines, err := LoadLines(filepath.Join(dir, "nope.txt"))
	require.NoError(t, err)
	assert.Empty(t, lines)

	m, err := LoadInvestableMap(filepath.Join(dir, "nope.csv"))
	require.NoError(t, err)
	assert.Empty(t, m)

	path := filepath.Join(dir, "brands.txt")
	require.NoError(t, os.WriteFile(path, []byte("# brands\nStanley\n\n  Nike  \n"), 0o644))
	lines, err = LoadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Stanley", "Nike"}, lines)
}

func newTestEnricher(overwrite bool) *Enricher {
	return New(Options{
		Brands: []string{"Abercrombie", "Liquid Death"},
		Investable: InvestableMap{
			"abercrombie":  {"brand": "Abercrombie", "status": "public", "ticker": "ANF"},
			"liquid death": {"brand": "Liquid Death", "status": "private"},
		},
		Overwrite: overwrite,
	}, nil)
}

func TestEnrichItem(t *testing.T) {
	t.Parallel()

	it := domain.NewItem(domain.SourceTikTok, "https://example.com/v/1", "Abercrombie haul is going viral")
	it.Text = "Loving $TSLA and NASDAQ: AAPL today. Also Liquid Death. #ad"

	out := newTestEnricher(false).Enrich(it)
	m := out.Metrics

	assert.Equal(t, []string{"AAPL", "TSLA"}, m.Tickers)
	assert.Equal(t, []string{"Abercrombie", "Liquid Death"}, m.Brands)
	assert.Equal(t, []string{"Abercrombie", "Liquid Death", "AAPL", "TSLA"}, m.KeyEntities)
	require.Len(t, m.Investable, 2)

	require.Len(t, m.RelatedTickers, 3)
	assert.Equal(t, domain.RelatedTicker{Ticker: "ANF", Confidence: 0.55, Reason: "Investable map: Abercrombie."}, m.RelatedTickers[2])
	assert.Equal(t, 0.35, m.RelatedTickers[0].Confidence)

	require.NotNil(t, m.RiskFlags)
	assert.True(t, m.RiskFlags.AdSponsored)
	assert.False(t, m.RiskFlags.MedicalClaim)
	require.NotNil(t, m.WhySpreading)
	assert.Contains(t, *m.WhySpreading, "Viral")
	require.NotNil(t, m.ContextSummary)
	assert.Equal(t, "regex", m.EnrichMethod)

	// input untouched
	assert.Nil(t, it.Metrics.Tickers)
}

func TestEnrichIsIdempotent(t *testing.T) {
	t.Parallel()

	it := domain.NewItem(domain.SourceRSS, "https://example.com/a", "Abercrombie $ANF rally")
	e := newTestEnricher(false)

	once := e.Enrich(it)
	twice := e.Enrich(once)
	assert.Equal(t, once.Metrics, twice.Metrics)
}

func TestEnrichKeepsRicherPriorPass(t *testing.T) {
	t.Parallel()

	it := domain.NewItem(domain.SourceTikTok, "https://example.com/v/2", "Abercrombie try-on #ad")
	it.Metrics.ContextSummary = domain.StringPtr("Vision: haul of summer denim.")
	it.Metrics.RiskFlags = &domain.RiskFlags{Notes: "vision"}
	it.Metrics.RelatedTickers = []domain.RelatedTicker{{Ticker: "ANF", Confidence: 0.9, Reason: "vision"}}
	it.Metrics.EnrichMethod = "vision"

	kept := newTestEnricher(false).Enrich(it).Metrics
	assert.Equal(t, "Vision: haul of summer denim.", *kept.ContextSummary)
	assert.Equal(t, "vision", kept.RiskFlags.Notes)
	assert.Equal(t, "vision", kept.EnrichMethod)
	require.Len(t, kept.RelatedTickers, 1)
	assert.Equal(t, 0.9, kept.RelatedTickers[0].Confidence)
	assert.Equal(t, []string{"Abercrombie"}, kept.Brands)

	replaced := newTestEnricher(true).Enrich(it).Metrics
	assert.Equal(t, "Heuristic flags (offline).", replaced.RiskFlags.Notes)
	assert.Equal(t, "regex", replaced.EnrichMethod)
	require.Len(t, replaced.RelatedTickers, 1)
	assert.Equal(t, 0.55, replaced.RelatedTickers[0].Confidence)
}

func TestMergePolicies(t *testing.T) {
	t.Parallel()

	dst := domain.Metrics{Tickers: []string{"A"}, KeyEntities: []string{"x"}}
	Merge(&dst, domain.Metrics{Tickers: []string{"B", "B"}, KeyEntities: []string{"y"}}, OfflinePolicies())
	assert.Equal(t, []string{"B"}, dst.Tickers)
	assert.Equal(t, []string{"x"}, dst.KeyEntities)

	Merge(&dst, domain.Metrics{}, OverwritePolicies())
	assert.Equal(t, []string{"B"}, dst.Tickers, "absent patch fields never clear")

	Merge(&dst, domain.Metrics{KeyEntities: []string{"y", "x"}}, FieldPolicies{FieldKeyEntities: DeepMergeLists})
	assert.Equal(t, []string{"x", "y"}, dst.KeyEntities)
	assert.Equal(t, "deep_merge_lists", DeepMergeLists.String())
}
