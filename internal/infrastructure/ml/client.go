package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	providerInternal    = "internal"
	providerPlaceholder = "internal_placeholder"
	placeholderNotes    = "Provider=internal selected, but no runner URL is configured; used stub output."
)

// Runner talks to an internal vision runner service. Without an endpoint it answers
// with the fallback provider's output, tagged as a placeholder.
type Runner struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	fallback ports.VisionProvider
}

var _ ports.VisionProvider = (*Runner)(nil)

// NewRunner creates a reusable HTTP client.
func NewRunner(endpoint, apiKey, model string, fallback ports.VisionProvider) *Runner {
	return &Runner{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 60 * time.Second},
		fallback: fallback,
	}
}

// Name reports the provider id.
func (r *Runner) Name() string {
	if r.endpoint == "" {
		return providerPlaceholder
	}
	return providerInternal
}

type runnerImage struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// Enrich posts the item and its screenshots to {endpoint}/enrich.
func (r *Runner) Enrich(ctx context.Context, it domain.Item, images []domain.Image) (domain.VisionResult, error) {
	if r.endpoint == "" {
		return r.placeholder(ctx, it, images)
	}

	payload := map[string]any{
		"item_id": it.ID,
		"source":  it.Source,
		"url":     it.URL,
		"title":   it.Title,
		"text":    it.Text,
		"metrics": it.Metrics,
		"images":  encodeImages(images),
	}
	if r.model != "" {
		payload["model"] = r.model
	}

	var result domain.VisionResult
	if err := r.post(ctx, "/enrich", payload, &result); err != nil {
		return domain.VisionResult{}, err
	}

	if result.Provider == "" {
		result.Provider = providerInternal
	}
	if result.EnrichedAt == "" {
		result.EnrichedAt = domain.FormatTimestamp(time.Now())
	}
	if result.ImagesUsed == nil {
		for _, img := range images {
			if len(img.Data) > 0 {
				result.ImagesUsed = append(result.ImagesUsed, img.Path)
			}
		}
	}
	return result, nil
}

func (r *Runner) placeholder(ctx context.Context, it domain.Item, images []domain.Image) (domain.VisionResult, error) {
	if r.fallback == nil {
		return domain.VisionResult{}, fmt.Errorf("internal runner is not configured")
	}
	result, err := r.fallback.Enrich(ctx, it, images)
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("fallback enrich: %w", err)
	}
	result.Provider = providerPlaceholder
	result.Notes = placeholderNotes
	return result, nil
}

func encodeImages(images []domain.Image) []runnerImage {
	out := make([]runnerImage, 0, len(images))
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		out = append(out, runnerImage{Path: img.Path, Data: base64.StdEncoding.EncodeToString(img.Data)})
	}
	return out
}

func (r *Runner) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
