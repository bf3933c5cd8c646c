// Package vision enriches items that carry screenshots with a trend and asset analysis,
// stored under metrics["llm_enrich"].
package vision

import (
	"errors"
	"fmt"
	"strings"

	"SignalScanner/internal/config"
	"SignalScanner/internal/infrastructure/llm"
	"SignalScanner/internal/infrastructure/ml"
	"SignalScanner/internal/ports"
)

// Provider ids accepted by NewProvider.
const (
	ProviderStub     = "stub"
	ProviderOpenAI   = "openai"
	ProviderInternal = "internal"

	// MaxImages is the per-item screenshot cap.
	MaxImages = 5
)

// ErrProviderUnavailable is returned when an explicitly requested provider lacks the
// credentials it needs.
var ErrProviderUnavailable = errors.New("vision provider unavailable")

// NewProvider selects the provider named in cfg.
func NewProvider(cfg config.VisionConfig) (ports.VisionProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderStub:
		return NewStub(), nil
	case ProviderOpenAI, "openai_vision":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai requires an API key", ErrProviderUnavailable)
		}
		return llm.NewChatGPTClient(cfg), nil
	case ProviderInternal, "codex":
		return ml.NewRunner(cfg.RunnerURL, cfg.APIKey, cfg.Model, NewStub()), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}
