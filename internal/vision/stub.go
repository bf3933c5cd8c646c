package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	maxEntities   = 25
	maxCandidates = 10
	mainTrendMax  = 120

	stubWhySpreading = "Likely spreading due to algorithmic distribution + remixable formats/audio + social proof."
)

var (
	cryptoExpr  = regexp.MustCompile(`(?i)\b(?:bitcoin|btc|ethereum|eth|solana|sol|crypto|memecoin)\b`)
	cashtagExpr = regexp.MustCompile(`\$[A-Z]{1,6}\b`)
	stockExpr   = regexp.MustCompile(`(?i)\b(?:nasdaq|nyse|earnings|stocks?)\b`)
	eventExpr   = regexp.MustCompile(`(?i)\b(?:election|debate|olympics|coachella|grammys|super bowl)\b`)

	riskAdExpr   = regexp.MustCompile(`(?i)(?:^|[^\w#])#ad\b|\b(?:sponsored|paid\s+partnership|promo\s+code|affiliate)\b`)
	riskMedExpr  = regexp.MustCompile(`(?i)\b(?:cure|treats?|heals?|miracle|detox|weight\s*loss|medical\s+advice|diagnos(?:e|is))\b`)
	riskScamExpr = regexp.MustCompile(`(?i)\b(?:giveaway|airdrop|dm\s+me|whatsapp|telegram|cash\s*app|guaranteed\s+profit|double\s+your|impersonat\w*)`)
)

// Stub is the deterministic offline provider. It needs no credentials and reads only
// the screenshot bytes and the item's existing metrics.
type Stub struct {
	now func() time.Time
}

var _ ports.VisionProvider = (*Stub)(nil)

// NewStub builds the offline provider.
func NewStub() *Stub {
	return &Stub{now: time.Now}
}

// Name reports the provider id written into results.
func (s *Stub) Name() string {
	return ProviderStub
}

// Enrich never fails.
func (s *Stub) Enrich(_ context.Context, it domain.Item, images []domain.Image) (domain.VisionResult, error) {
	blob := cleanText(it.Title + "\n" + it.Text)
	m := it.Metrics

	used := make([]string, 0, len(images))
	fps := make([]string, 0, len(images))
	for _, img := range limitImages(images, MaxImages) {
		if len(img.Data) == 0 {
			continue
		}
		used = append(used, img.Path)
		fps = append(fps, fingerprint(img.Data))
	}

	topic := DetectTopic(blob)
	flags := RiskFlags(blob)
	candidates := Candidates(m, topic)

	assetType := domain.AssetOther
	if len(candidates) > 0 {
		assetType = candidates[0].AssetType
	}

	return domain.VisionResult{
		MainTrend:    mainTrend(it),
		Context:      "topic=" + topic,
		Entities:     Entities(m),
		WhySpreading: stubWhySpreading,
		RiskFlags:    &flags,
		AssetType:    assetType,
		Candidates:   candidates,
		ImagesUsed:   used,
		Fingerprints: fps,
		Provider:     ProviderStub,
		EnrichedAt:   domain.FormatTimestamp(s.now()),
	}, nil
}

// DetectTopic classifies text as crypto, stock, event or other.
func DetectTopic(blob string) string {
	switch {
	case cryptoExpr.MatchString(blob):
		return domain.AssetCrypto
	case cashtagExpr.MatchString(blob) || stockExpr.MatchString(blob):
		return domain.AssetStock
	case eventExpr.MatchString(blob):
		return domain.AssetEvent
	default:
		return domain.AssetOther
	}
}

// RiskFlags evaluates the ad, medical and scam heuristics.
func RiskFlags(blob string) domain.RiskFlags {
	ad := riskAdExpr.MatchString(blob)
	med := riskMedExpr.MatchString(blob)
	scam := riskScamExpr.MatchString(blob)

	var notes []string
	if ad {
		notes = append(notes, "ad/sponsored language")
	}
	if med {
		notes = append(notes, "medical/health claim language")
	}
	if scam {
		notes = append(notes, "giveaway/impersonation/scam language")
	}
	return domain.RiskFlags{
		AdSponsored:         ad,
		MedicalClaim:        med,
		ScamOrImpersonation: &scam,
		Notes:               strings.Join(notes, ", "),
	}
}

// Entities lists brands, key entities, the creator handle, hashtags and sound info,
// de-duplicated case-insensitively.
func Entities(m domain.Metrics) []string {
	var ents []string
	ents = append(ents, m.Brands...)
	ents = append(ents, m.KeyEntities...)
	if m.Creator != "" {
		ents = append(ents, "@"+m.Creator)
	}
	ents = append(ents, m.Hashtags...)
	for _, key := range []string{"sound_title", "sound_artist"} {
		if v := extraString(m, key); v != "" {
			ents = append(ents, v)
		}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		e = cleanText(e)
		if e == "" {
			continue
		}
		k := strings.ToLower(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
		if len(out) == maxEntities {
			break
		}
	}
	return out
}

// Candidates derives asset candidates from earlier enrichment, highest confidence first.
func Candidates(m domain.Metrics, topic string) []domain.AssetCandidate {
	var cands []domain.AssetCandidate

	for _, inv := range m.Investable {
		tk := inv.Ticker()
		if tk == "" {
			continue
		}
		name := inv.Brand()
		if name == "" {
			name = inv.Parent()
		}
		if name == "" {
			name = tk
		}
		cands = append(cands, candidate(domain.AssetStock, tk, name, 0.75, "Investable map: brand→ticker."))
	}
	for _, tk := range m.Tickers {
		if tk != "" {
			cands = append(cands, candidate(domain.AssetStock, tk, tk, 0.55, "Ticker appears in text."))
		}
	}
	for _, rt := range m.RelatedTickers {
		if rt.Ticker == "" {
			continue
		}
		conf := rt.Confidence
		if conf == 0 {
			conf = 0.4
		}
		reason := rt.Reason
		if reason == "" {
			reason = "Related ticker (offline)."
		}
		cands = append(cands, candidate(domain.AssetStock, rt.Ticker, rt.Ticker, conf, reason))
	}

	if topic == domain.AssetCrypto {
		blob := " " + strings.ToLower(strings.Join(m.Hashtags, " "))
		if m.ContextSummary != nil {
			blob += " " + strings.ToLower(*m.ContextSummary)
		}
		if strings.Contains(blob, "bitcoin") || strings.Contains(blob, "#btc") || strings.Contains(blob, " btc") {
			cands = append(cands, candidate(domain.AssetCrypto, "BTC", "Bitcoin", 0.5, "Crypto topic suggests BTC."))
		}
		if strings.Contains(blob, "ethereum") || strings.Contains(blob, "#eth") || strings.Contains(blob, " eth") {
			cands = append(cands, candidate(domain.AssetCrypto, "ETH", "Ethereum", 0.45, "Crypto topic suggests ETH."))
		}
	}

	if len(cands) == 0 {
		kind := domain.AssetOther
		if topic == domain.AssetEvent {
			kind = domain.AssetEvent
		}
		cands = append(cands, domain.AssetCandidate{
			AssetType:  kind,
			Name:       "Viral short-form trend",
			Confidence: 0.2,
			Reason:     "No explicit investable asset detected; treat as a general trend/event.",
		})
	}

	seen := map[string]struct{}{}
	uniq := make([]domain.AssetCandidate, 0, len(cands))
	for _, c := range cands {
		sym := ""
		if c.Symbol != nil {
			sym = *c.Symbol
		}
		key := c.AssetType + "|" + sym + "|" + c.Name
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, c)
	}

	sort.SliceStable(uniq, func(i, j int) bool { return uniq[i].Confidence > uniq[j].Confidence })
	if len(uniq) > maxCandidates {
		uniq = uniq[:maxCandidates]
	}
	return uniq
}

func candidate(kind, symbol, name string, confidence float64, reason string) domain.AssetCandidate {
	sym := symbol
	return domain.AssetCandidate{
		AssetType:  kind,
		Symbol:     &sym,
		Name:       name,
		Confidence: clamp01(confidence),
		Reason:     reason,
	}
}

func mainTrend(it domain.Item) string {
	if len(it.Metrics.Hashtags) > 0 && it.Metrics.Hashtags[0] != "" {
		return it.Metrics.Hashtags[0]
	}
	if it.Metrics.Keyword != "" {
		return it.Metrics.Keyword
	}
	title := it.Title
	if title == "" {
		title = "(tiktok)"
	}
	if r := []rune(title); len(r) > mainTrendMax {
		title = string(r[:mainTrendMax])
	}
	return title
}

func extraString(m domain.Metrics, key string) string {
	raw, ok := m.Lookup(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:12]
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func limitImages(images []domain.Image, n int) []domain.Image {
	if len(images) > n {
		return images[:n]
	}
	return images
}
