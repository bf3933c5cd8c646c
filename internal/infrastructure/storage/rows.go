package storage

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"SignalScanner/internal/domain"
)

type itemRow struct {
	ID        string          `db:"item_id"`
	Source    string          `db:"source"`
	URL       string          `db:"url"`
	Title     string          `db:"title"`
	Text      sql.NullString  `db:"text"`
	Metrics   string          `db:"metrics_json"`
	Score     sql.NullFloat64 `db:"score"`
	Breakdown sql.NullString  `db:"score_breakdown_json"`
	CreatedAt sql.NullString  `db:"created_at"`
	FetchedAt string          `db:"fetched_at"`
	Raw       sql.NullString  `db:"raw_json"`
}

func toRow(it domain.Item, now time.Time) (itemRow, error) {
	metrics, err := json.Marshal(it.Metrics)
	if err != nil {
		return itemRow{}, err
	}
	breakdown, err := encodeBreakdown(it.ScoreBreakdown)
	if err != nil {
		return itemRow{}, err
	}

	fetched := it.FetchedAt
	if fetched.IsZero() {
		fetched = now
	}

	row := itemRow{
		ID:        it.ID,
		Source:    string(it.Source),
		URL:       it.URL,
		Title:     it.Title,
		Text:      nullString(it.Text),
		Metrics:   string(metrics),
		Score:     nullFloat(it.Score),
		Breakdown: breakdown,
		CreatedAt: nullString(it.CreatedAt),
		FetchedAt: domain.FormatTimestamp(fetched),
	}
	if !domain.IsEmptyJSON(it.Raw) {
		raw := it.Raw
		if !json.Valid(raw) {
			if raw, err = json.Marshal(string(it.Raw)); err != nil {
				return itemRow{}, err
			}
		}
		row.Raw = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

// toItem decodes a row. Malformed JSON columns degrade to empty values with a warning.
func (r itemRow) toItem(logger *slog.Logger) domain.Item {
	it := domain.Item{
		ID:        r.ID,
		Source:    domain.Source(r.Source),
		URL:       r.URL,
		Title:     r.Title,
		Text:      r.Text.String,
		CreatedAt: r.CreatedAt.String,
	}

	metrics, ok := domain.ParseMetrics(r.Metrics)
	if !ok {
		logger.Warn("malformed metrics json", "item_id", r.ID)
	}
	it.Metrics = metrics

	if r.Score.Valid {
		v := r.Score.Float64
		it.Score = &v
	}
	if r.Breakdown.Valid && r.Breakdown.String != "" {
		var b domain.ScoreBreakdown
		if err := json.Unmarshal([]byte(r.Breakdown.String), &b); err != nil {
			logger.Warn("malformed score breakdown json", "item_id", r.ID, "error", err)
		} else {
			it.ScoreBreakdown = &b
		}
	}

	if ts, ok := domain.ParseTimestamp(r.FetchedAt); ok {
		it.FetchedAt = ts
	} else {
		logger.Warn("malformed fetched_at", "item_id", r.ID, "value", r.FetchedAt)
	}

	if r.Raw.Valid && r.Raw.String != "" {
		if json.Valid([]byte(r.Raw.String)) {
			it.Raw = json.RawMessage(r.Raw.String)
		} else {
			logger.Warn("malformed raw json", "item_id", r.ID)
		}
	}
	return it
}

func encodeBreakdown(b *domain.ScoreBreakdown) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
