package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Metrics is the per-item signal bag. Fields the pipeline reads are typed; every other
// key is preserved verbatim in Extra. The JSON form is one flat object.
type Metrics struct {
	Points       Number
	Likes        Number
	Upvotes      Number
	Comments     Number
	Replies      Number
	Retweets     Number
	Shares       Number
	Views        Number
	ViewVelocity Number

	Keyword     string
	Collector   string
	Creator     string
	Hashtags    []string
	Screenshots []string

	Tickers        []string
	Brands         []string
	Investable     []InvestableEntry
	RelatedTickers []RelatedTicker
	KeyEntities    []string
	ContextSummary *string
	WhySpreading   *string
	RiskFlags      *RiskFlags
	EnrichMethod   string

	Extra map[string]json.RawMessage
}

// InvestableEntry is one row of the brand to investment-vehicle table. All columns of
// the source table are kept.
type InvestableEntry map[string]string

// Brand returns the brand column.
func (e InvestableEntry) Brand() string { return e["brand"] }

// Ticker returns the ticker column.
func (e InvestableEntry) Ticker() string { return e["ticker"] }

// Status returns the listing status column ("public", "private", ...).
func (e InvestableEntry) Status() string { return e["status"] }

// Parent returns the parent-company column.
func (e InvestableEntry) Parent() string { return e["parent"] }

// RelatedTicker is a ticker associated with an item and the confidence of that link.
type RelatedTicker struct {
	Ticker     string  `json:"ticker"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RiskFlags are advisory content flags.
type RiskFlags struct {
	AdSponsored         bool   `json:"ad_sponsored"`
	MedicalClaim        bool   `json:"misinformation_or_medical_claim"`
	ScamOrImpersonation *bool  `json:"scam_or_impersonation,omitempty"`
	Notes               string `json:"notes"`
}

type metricField struct {
	key    string
	decode func(m *Metrics, raw json.RawMessage) bool
	encode func(m *Metrics) (any, bool)
}

func typedField[T any](key string, ptr func(*Metrics) *T, present func(T) bool) metricField {
	return metricField{
		key: key,
		decode: func(m *Metrics, raw json.RawMessage) bool {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil || !present(v) {
				return false
			}
			*ptr(m) = v
			return true
		},
		encode: func(m *Metrics) (any, bool) {
			v := *ptr(m)
			return v, present(v)
		},
	}
}

func validNumber(n Number) bool { return n.Valid }
func nonEmpty(s string) bool { return s != "" }
func notNil[T any](s []T) bool { return s != nil }
func notNilPtr[T any](p *T) bool { return p != nil }

var metricFields = []metricField{
	typedField("points", func(m *Metrics) *Number { return &m.Points }, validNumber),
	typedField("likes", func(m *Metrics) *Number { return &m.Likes }, validNumber),
	typedField("upvotes", func(m *Metrics) *Number { return &m.Upvotes }, validNumber),
	typedField("comments", func(m *Metrics) *Number { return &m.Comments }, validNumber),
	typedField("replies", func(m *Metrics) *Number { return &m.Replies }, validNumber),
	typedField("retweets", func(m *Metrics) *Number { return &m.Retweets }, validNumber),
	typedField("shares", func(m *Metrics) *Number { return &m.Shares }, validNumber),
	typedField("views", func(m *Metrics) *Number { return &m.Views }, validNumber),
	typedField("view_velocity", func(m *Metrics) *Number { return &m.ViewVelocity }, validNumber),
	typedField("keyword", func(m *Metrics) *string { return &m.Keyword }, nonEmpty),
	typedField("collector", func(m *Metrics) *string { return &m.Collector }, nonEmpty),
	typedField("creator", func(m *Metrics) *string { return &m.Creator }, nonEmpty),
	typedField("hashtags", func(m *Metrics) *[]string { return &m.Hashtags }, notNil[string]),
	typedField("screenshots", func(m *Metrics) *[]string { return &m.Screenshots }, notNil[string]),
	typedField("tickers", func(m *Metrics) *[]string { return &m.Tickers }, notNil[string]),
	typedField("brands", func(m *Metrics) *[]string { return &m.Brands }, notNil[string]),
	typedField("investable", func(m *Metrics) *[]InvestableEntry { return &m.Investable }, notNil[InvestableEntry]),
	typedField("related_tickers", func(m *Metrics) *[]RelatedTicker { return &m.RelatedTickers }, notNil[RelatedTicker]),
	typedField("key_entities", func(m *Metrics) *[]string { return &m.KeyEntities }, notNil[string]),
	typedField("context_summary", func(m *Metrics) **string { return &m.ContextSummary }, notNilPtr[string]),
	typedField("why_spreading", func(m *Metrics) **string { return &m.WhySpreading }, notNilPtr[string]),
	typedField("risk_flags", func(m *Metrics) **RiskFlags { return &m.RiskFlags }, notNilPtr[RiskFlags]),
	typedField("enrich_method", func(m *Metrics) *string { return &m.EnrichMethod }, nonEmpty),
}

// MarshalJSON flattens typed fields and Extra into one object. Typed values win over
// Extra entries with the same key.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+len(metricFields))
	for k, v := range m.Extra {
		out[k] = v
	}
	for _, f := range metricFields {
		v, ok := f.encode(&m)
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[f.key] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes known keys into typed fields. Known keys whose value cannot be
// decoded stay in Extra untouched, as does every unknown key; nulls are dropped.
func (m *Metrics) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = Metrics{}
	for _, f := range metricFields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if isNull(v) || f.decode(m, v) {
			delete(raw, f.key)
		}
	}
	for k, v := range raw {
		if isNull(v) {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage, len(raw))
		}
		m.Extra[k] = v
	}
	return nil
}

// ParseMetrics decodes a stored metrics blob; malformed input yields empty metrics.
func ParseMetrics(blob string) (Metrics, bool) {
	var m Metrics
	if strings.TrimSpace(blob) == "" {
		return m, true
	}
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return Metrics{}, false
	}
	return m, true
}

// Clone returns a deep copy.
func (m Metrics) Clone() Metrics {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out Metrics
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}

// Lookup returns the raw JSON stored under an extension key.
func (m Metrics) Lookup(key string) (json.RawMessage, bool) {
	v, ok := m.Extra[key]
	return v, ok
}

// SetExtra stores an arbitrary JSON-encodable value under an extension key.
func (m *Metrics) SetExtra(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if m.Extra == nil {
		m.Extra = map[string]json.RawMessage{}
	}
	m.Extra[key] = raw
	return nil
}

// IsEmptyJSON reports whether raw is null, an empty string, an empty object or an
// empty array.
func IsEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) == 0 {
		return true
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 0 {
		return true
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
