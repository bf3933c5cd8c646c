package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/domain"
)

func TestExportWritesAllRepresentations(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	score := 0.75
	it := domain.NewItem(domain.SourceHN, "https://example.com/a", "Launch, with comma")
	it.Score = &score
	it.CreatedAt = "2026-05-06T06:00:00Z"
	it.FetchedAt = now
	it.Metrics.Tickers = []string{"AAPL"}
	unscored := domain.NewItem(domain.SourceRSS, "https://example.com/b", "quiet")

	paths, err := NewExporter(dir, nil).Export([]domain.Item{it, unscored}, now)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "signals_20260506_070809.json"), paths[0])
	assert.True(t, strings.HasSuffix(paths[1], ".csv"))
	assert.True(t, strings.HasSuffix(paths[2], ".xml"))

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var tree []map[string]any
	require.NoError(t, json.Unmarshal(raw, &tree))
	require.Len(t, tree, 2)
	metrics := tree[0]["metrics"].(map[string]any)
	assert.Equal(t, []any{"AAPL"}, metrics["tickers"])

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "Launch, with comma", rows[1][3])
	assert.Equal(t, "0.75", rows[1][2])
	assert.Equal(t, `{"tickers":["AAPL"]}`, rows[1][7])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "", rows[2][6])

	atom, err := os.ReadFile(paths[2])
	require.NoError(t, err)
	assert.Contains(t, string(atom), "<feed")
	assert.Contains(t, string(atom), "urn:signalscanner:"+it.ID)
	assert.Contains(t, string(atom), "[hn] score=0.75")
}

func TestExportEmpty(t *testing.T) {
	paths, err := NewExporter(t.TempDir(), nil).Export(nil, time.Now())
	require.NoError(t, err)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
