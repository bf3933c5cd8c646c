package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const (
	providerName = "openai"

	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
	maxImages       = 5

	systemPrompt = "You are a financial/social trend analyst. " +
		"Use the provided screenshots (vision) as primary evidence and the metadata as context. " +
		"Return ONLY valid JSON."

	userPrompt = "Analyze the post and return JSON with keys:\n" +
		"- main_trend (string)\n" +
		"- context (string)\n" +
		"- entities (array of strings)\n" +
		"- why_spreading (string)\n" +
		"- risk_flags {ad_sponsored:boolean, misinformation_or_medical_claim:boolean, scam_or_impersonation:boolean, notes:string}\n" +
		"- asset_type: stock|crypto|event|other\n" +
		"- candidates: array of {asset_type, symbol|null, name, confidence 0..1, reason}\n\n" +
		"Rules: if unsure, keep confidence low and prefer event/other candidates rather than guessing tickers.\n\n" +
		"INPUT_METADATA_JSON: "
)

// ChatGPTClient implements ports.VisionProvider backed by OpenAI-compatible chat
// completions with image inputs.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

var _ ports.VisionProvider = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.VisionConfig) *ChatGPTClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatGPTClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Name reports the provider id.
func (c *ChatGPTClient) Name() string {
	return providerName
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enrich sends the screenshots and item metadata and decodes the model's JSON object.
func (c *ChatGPTClient) Enrich(ctx context.Context, it domain.Item, images []domain.Image) (domain.VisionResult, error) {
	if c == nil {
		return domain.VisionResult{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.VisionResult{}, fmt.Errorf("chatgpt client misconfigured")
	}

	meta, err := json.Marshal(metadata(it))
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("marshal metadata: %w", err)
	}

	parts := []contentPart{{Type: "text", Text: userPrompt + string(meta)}}
	used := make([]string, 0, len(images))
	for _, img := range images {
		if len(used) == maxImages {
			break
		}
		if len(img.Data) == 0 {
			continue
		}
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL(img)}})
		used = append(used, img.Path)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.VisionResult{}, fmt.Errorf("send vision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.VisionResult{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.VisionResult{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return domain.VisionResult{}, fmt.Errorf("chatgpt returned no choices")
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		content = "{}"
	}
	var result domain.VisionResult
	if !strings.HasPrefix(content, "{") {
		return domain.VisionResult{}, fmt.Errorf("chatgpt returned non-object JSON")
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return domain.VisionResult{}, fmt.Errorf("decode vision result: %w", err)
	}

	model := c.model
	result.ImagesUsed = used
	result.Provider = providerName
	result.Model = &model
	result.EnrichedAt = domain.FormatTimestamp(c.now())
	return result, nil
}

func metadata(it domain.Item) map[string]any {
	m := it.Metrics
	return map[string]any{
		"title":    it.Title,
		"text":     it.Text,
		"url":      it.URL,
		"creator":  nullable(m.Creator),
		"hashtags": m.Hashtags,
		"sound": map[string]any{
			"title":  extra(m, "sound_title"),
			"artist": extra(m, "sound_artist"),
		},
		"posted_time": extra(m, "posted_time"),
	}
}

func extra(m domain.Metrics, key string) json.RawMessage {
	if raw, ok := m.Lookup(key); ok {
		return raw
	}
	return json.RawMessage("null")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dataURL(img domain.Image) string {
	return "data:" + mimeFor(img.Path) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
