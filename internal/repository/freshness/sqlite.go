package freshness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	domain "github.com/cagrikaymak/marketsync/internal/freshness"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, e domain.Entry) error {
	const query = `INSERT INTO freshness (symbol, timeframe, last_computed_at, data_point_count, staleness_secs, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe) DO UPDATE SET
			last_computed_at = excluded.last_computed_at,
			data_point_count = excluded.data_point_count,
			staleness_secs = excluded.staleness_secs,
			status = excluded.status`

	_, err := r.db.ExecContext(ctx, query,
		e.Symbol, string(e.Timeframe), e.LastComputedAt.UTC().Format(time.RFC3339),
		e.DataPointCount, e.StalenessSecs, string(e.Status))
	if err != nil {
		return fmt.Errorf("upsert freshness: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT symbol, timeframe, last_computed_at, data_point_count, staleness_secs, status
		FROM freshness ORDER BY staleness_secs DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list freshness: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var tf, computedAt, status string
		if err := rows.Scan(&e.Symbol, &tf, &computedAt, &e.DataPointCount, &e.StalenessSecs, &status); err != nil {
			return nil, fmt.Errorf("scan freshness: %w", err)
		}
		e.Timeframe = candle.Timeframe(tf)
		e.LastComputedAt, _ = time.Parse(time.RFC3339, computedAt)
		e.Status = domain.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) StaleCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM freshness WHERE status IN (?, ?)",
		string(domain.StatusStale), string(domain.StatusMissing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale freshness: %w", err)
	}
	return n, nil
}
