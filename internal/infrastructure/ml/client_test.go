package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/domain"
)

type fakeProvider struct {
	err error
}

func (f fakeProvider) Name() string { return "stub" }

func (f fakeProvider) Enrich(_ context.Context, _ domain.Item, images []domain.Image) (domain.VisionResult, error) {
	if f.err != nil {
		return domain.VisionResult{}, f.err
	}
	return domain.VisionResult{MainTrend: "fallback", Provider: "stub", ImagesUsed: []string{images[0].Path}}, nil
}

func TestRunnerPostsToEnrich(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enrich", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"main_trend":"runner says hi","asset_type":"event"}`))
	}))
	defer srv.Close()

	runner := NewRunner(srv.URL+"/", "secret", "m1", fakeProvider{})
	assert.Equal(t, "internal", runner.Name())

	it := domain.NewItem(domain.SourceTikTok, "u", "t")
	res, err := runner.Enrich(context.Background(), it, []domain.Image{{Path: "a.png", Data: []byte("x")}})
	require.NoError(t, err)

	assert.Equal(t, "runner says hi", res.MainTrend)
	assert.Equal(t, "internal", res.Provider)
	assert.Equal(t, []string{"a.png"}, res.ImagesUsed)
	assert.NotEmpty(t, res.EnrichedAt)
	assert.Equal(t, it.ID, body["item_id"])
	assert.Equal(t, "m1", body["model"])
	assert.Len(t, body["images"], 1)
}

func TestRunnerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRunner(srv.URL, "", "", nil).Enrich(context.Background(), domain.Item{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRunnerPlaceholderUsesFallback(t *testing.T) {
	runner := NewRunner("", "", "", fakeProvider{})
	assert.Equal(t, "internal_placeholder", runner.Name())

	res, err := runner.Enrich(context.Background(), domain.Item{}, []domain.Image{{Path: "a.png", Data: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.MainTrend)
	assert.Equal(t, "internal_placeholder", res.Provider)
	assert.Equal(t, placeholderNotes, res.Notes)

	boom := errors.New("boom")
	_, err = NewRunner("", "", "", fakeProvider{err: boom}).Enrich(context.Background(), domain.Item{}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = NewRunner("", "", "", nil).Enrich(context.Background(), domain.Item{}, nil)
	assert.Error(t, err)
}
