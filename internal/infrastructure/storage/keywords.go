package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

var _ ports.KeywordRotator = (*Store)(nil)

// NextKeyword advances the rotation of group and returns the keyword now selected.
// Each group keeps its own position; an empty list yields "".
func (s *Store) NextKeyword(ctx context.Context, group string, keywords []string) (string, error) {
	if len(keywords) == 0 {
		return "", nil
	}

	var chosen string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Select("idx").
			From("keyword_state").
			Where(sq.Eq{"group_name": group}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build keyword read: %w", err)
		}

		idx := -1
		found := true
		if err := tx.GetContext(ctx, &idx, query, args...); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("read keyword state %s: %w", group, err)
			}
			idx, found = -1, false
		}

		next := (idx + 1) % len(keywords)
		if next < 0 {
			next = 0
		}
		chosen = keywords[next]
		now := domain.FormatTimestamp(time.Now())

		var b sq.Sqlizer
		if found {
			b = s.sb.Update("keyword_state").
				Set("idx", next).
				Set("keyword", chosen).
				Set("updated_at", now).
				Where(sq.Eq{"group_name": group})
		} else {
			b = s.sb.Insert("keyword_state").
				Columns("group_name", "idx", "keyword", "updated_at").
				Values(group, next, chosen, now)
		}
		query, args, err = b.ToSql()
		if err != nil {
			return fmt.Errorf("build keyword write: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write keyword state %s: %w", group, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return chosen, nil
}
