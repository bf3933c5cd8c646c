package domain

// Image is a screenshot handed to a vision provider.
type Image struct {
	Path string
	Data []byte
}

// Asset types a vision result may point at.
const (
	AssetStock  = "stock"
	AssetCrypto = "crypto"
	AssetEvent  = "event"
	AssetOther  = "other"
)

// AssetCandidate is a tradable (or not) asset suggested by a vision pass.
type AssetCandidate struct {
	AssetType  string  `json:"asset_type"`
	Symbol     *string `json:"symbol"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// VisionResult is stored under metrics["llm_enrich"].
type VisionResult struct {
	MainTrend    string           `json:"main_trend"`
	Context      string           `json:"context"`
	Entities     []string         `json:"entities"`
	WhySpreading string           `json:"why_spreading"`
	RiskFlags    *RiskFlags       `json:"risk_flags,omitempty"`
	AssetType    string           `json:"asset_type"`
	Candidates   []AssetCandidate `json:"candidates"`
	ImagesUsed   []string         `json:"images_used"`
	Fingerprints []string         `json:"fingerprints,omitempty"`
	Provider     string           `json:"provider"`
	Model        *string          `json:"model"`
	EnrichedAt   string           `json:"enriched_at"`
	Notes        string           `json:"notes,omitempty"`
	Error        string           `json:"error,omitempty"`
}
