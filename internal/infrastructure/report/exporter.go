// Package report writes ranked items to JSON, CSV and Atom files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/feeds"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const fileStampLayout = "20060102_150405"

// CSVHeader is the flat column order of the CSV report.
var CSVHeader = []string{"item_id", "source", "score", "title", "url", "created_at", "fetched_at", "metrics_json"}

// Exporter writes one file per representation into a directory.
type Exporter struct {
	outDir string
	logger *slog.Logger
}

var _ ports.Exporter = (*Exporter)(nil)

// NewExporter targets outDir, created on first export.
func NewExporter(outDir string, logger *slog.Logger) *Exporter {
	if outDir == "" {
		outDir = "./reports"
	}
	return &Exporter{outDir: outDir, logger: logger}
}

// Export writes signals_<UTC stamp>.{json,csv,xml} and returns their paths.
func (e *Exporter) Export(items []domain.Item, now time.Time) ([]string, error) {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	base := filepath.Join(e.outDir, "signals_"+now.UTC().Format(fileStampLayout))
	writers := []struct {
		ext   string
		write func(string, []domain.Item, time.Time) error
	}{
		{".json", writeJSON},
		{".csv", writeCSV},
		{".xml", writeAtom},
	}

	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		path := base + w.ext
		if err := w.write(path, items, now); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	if e.logger != nil {
		e.logger.Info("reports written", "items", len(items), "dir", e.outDir)
	}
	return paths, nil
}

func writeJSON(path string, items []domain.Item, _ time.Time) error {
	if items == nil {
		items = []domain.Item{}
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeCSV(path string, items []domain.Item, _ time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	for _, it := range items {
		row, err := csvRow(it)
		if err != nil {
			return err
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func csvRow(it domain.Item) ([]string, error) {
	metrics, err := json.Marshal(it.Metrics)
	if err != nil {
		return nil, err
	}
	score := ""
	if it.Score != nil {
		score = strconv.FormatFloat(*it.Score, 'f', -1, 64)
	}
	fetched := ""
	if !it.FetchedAt.IsZero() {
		fetched = domain.FormatTimestamp(it.FetchedAt)
	}
	return []string{
		it.ID,
		string(it.Source),
		score,
		it.Title,
		it.URL,
		it.CreatedAt,
		fetched,
		string(metrics),
	}, nil
}

func writeAtom(path string, items []domain.Item, now time.Time) error {
	feed := &feeds.Feed{
		Title:       "SignalScanner top signals",
		Description: "Highest scoring items across sources",
		Link:        &feeds.Link{Href: "https://github.com/signalscanner", Rel: "self"},
		Id:          "tag:signalscanner,2026:signals",
		Created:     now,
		Updated:     now,
	}

	for _, it := range items {
		created := it.FetchedAt
		if t, ok := domain.ParseTimestamp(it.CreatedAt); ok {
			created = t
		}
		score := 0.0
		if it.Score != nil {
			score = *it.Score
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.URL, Rel: "alternate", Type: "text/html"},
			Id:          "urn:signalscanner:" + it.ID,
			Description: fmt.Sprintf("[%s] score=%.2f", it.Source, score),
			Created:     created,
			Updated:     it.FetchedAt,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(atom), 0o644)
}
