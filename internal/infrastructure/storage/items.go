package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

var _ ports.ItemRepository = (*Store)(nil)

var itemColumns = []string{
	"item_id", "source", "url", "title", "text", "metrics_json", "score",
	"score_breakdown_json", "created_at", "fetched_at", "raw_json",
}

// upsertConflict keeps a stored score when the incoming one is null and never moves
// fetched_at backwards.
const upsertConflict = `ON CONFLICT (item_id) DO UPDATE SET
	title = excluded.title,
	text = excluded.text,
	metrics_json = excluded.metrics_json,
	score = COALESCE(excluded.score, items.score),
	score_breakdown_json = COALESCE(excluded.score_breakdown_json, items.score_breakdown_json),
	created_at = COALESCE(excluded.created_at, items.created_at),
	fetched_at = CASE WHEN excluded.fetched_at > items.fetched_at THEN excluded.fetched_at ELSE items.fetched_at END,
	raw_json = excluded.raw_json`

// Upsert inserts new items and merges re-fetched ones. The whole batch commits or none.
func (s *Store) Upsert(ctx context.Context, items []domain.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now()
	n := 0
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, it := range items {
			row, err := toRow(it, now)
			if err != nil {
				return fmt.Errorf("encode item %s: %w", it.ID, err)
			}

			query, args, err := s.sb.Insert("items").
				Columns(itemColumns...).
				Values(row.ID, row.Source, row.URL, row.Title, row.Text, row.Metrics, row.Score,
					row.Breakdown, row.CreatedAt, row.FetchedAt, row.Raw).
				Suffix(upsertConflict).
				ToSql()
			if err != nil {
				return fmt.Errorf("build upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert item %s: %w", it.ID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateScores overwrites score and breakdown by id and returns the rows touched.
func (s *Store) UpdateScores(ctx context.Context, items []domain.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	n := 0
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, it := range items {
			breakdown, err := encodeBreakdown(it.ScoreBreakdown)
			if err != nil {
				return fmt.Errorf("encode breakdown %s: %w", it.ID, err)
			}

			query, args, err := s.sb.Update("items").
				Set("score", nullFloat(it.Score)).
				Set("score_breakdown_json", breakdown).
				Where(sq.Eq{"item_id": it.ID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build score update: %w", err)
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("update score %s: %w", it.ID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FetchUnscored returns up to limit rows without a score, newest-fetched first.
func (s *Store) FetchUnscored(ctx context.Context, limit int) ([]domain.Item, error) {
	q := s.sb.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"score": nil}).
		OrderBy("fetched_at DESC").
		Limit(uint64(clampLimit(limit)))
	return s.selectItems(ctx, q)
}

// TopItems ranks scored rows before unscored ones, then by score and recency of fetch.
func (s *Store) TopItems(ctx context.Context, limit int, minScore *float64) ([]domain.Item, error) {
	q := s.sb.Select(itemColumns...).From("items")
	if minScore != nil {
		q = q.Where(sq.And{sq.NotEq{"score": nil}, sq.GtOrEq{"score": *minScore}})
	}
	q = q.OrderBy("(score IS NULL) ASC", "score DESC", "fetched_at DESC").
		Limit(uint64(clampLimit(limit)))
	return s.selectItems(ctx, q)
}

// FetchRecent returns the newest-fetched rows, optionally of one source.
func (s *Store) FetchRecent(ctx context.Context, limit int, source domain.Source) ([]domain.Item, error) {
	q := s.sb.Select(itemColumns...).From("items")
	if source != "" {
		q = q.Where(sq.Eq{"source": string(source)})
	}
	q = q.OrderBy("fetched_at DESC").Limit(uint64(clampLimit(limit)))
	return s.selectItems(ctx, q)
}

// GetItem loads one row by id.
func (s *Store) GetItem(ctx context.Context, id string) (domain.Item, error) {
	query, args, err := s.sb.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"item_id": id}).
		ToSql()
	if err != nil {
		return domain.Item{}, fmt.Errorf("build get: %w", err)
	}

	var row itemRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return row.toItem(s.logger), nil
}

// MergeMetrics writes patch under metrics[key]. An existing non-empty value is left alone
// (and false returned) unless overwrite is set, in which case patch is deep-merged over it.
func (s *Store) MergeMetrics(ctx context.Context, id, key string, patch map[string]any, overwrite bool) (bool, error) {
	written := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Select("metrics_json").
			From("items").
			Where(sq.Eq{"item_id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build metrics read: %w", err)
		}

		var blob string
		if err := tx.GetContext(ctx, &blob, query, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read metrics %s: %w", id, err)
		}

		metrics := map[string]json.RawMessage{}
		if err := json.Unmarshal([]byte(blob), &metrics); err != nil || metrics == nil {
			s.logger.Warn("malformed metrics blob, replacing", "item_id", id, "error", err)
			metrics = map[string]json.RawMessage{}
		}

		value := patch
		if existing, ok := metrics[key]; ok && !domain.IsEmptyJSON(existing) {
			if !overwrite {
				return nil
			}
			var prev map[string]any
			if err := json.Unmarshal(existing, &prev); err == nil {
				value = deepMerge(prev, patch)
			}
		}

		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode patch: %w", err)
		}
		metrics[key] = raw
		merged, err := json.Marshal(metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}

		query, args, err = s.sb.Update("items").
			Set("metrics_json", string(merged)).
			Where(sq.Eq{"item_id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build metrics update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update metrics %s: %w", id, err)
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

func (s *Store) selectItems(ctx context.Context, q sq.SelectBuilder) ([]domain.Item, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}

	out := make([]domain.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toItem(s.logger))
	}
	return out, nil
}

// deepMerge overlays src onto dst, recursing into nested objects.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(dm, sm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
