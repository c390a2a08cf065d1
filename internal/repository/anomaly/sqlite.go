package anomaly

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/quality"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, a *quality.Anomaly) error {
	const query = `INSERT INTO anomalies (symbol, timeframe, kind, detected_at, details)
		VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		a.Symbol, string(a.Timeframe), string(a.Kind),
		a.DetectedAt.UTC().Format(time.RFC3339), a.Details)
	if err != nil {
		return fmt.Errorf("append anomaly: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("anomaly id: %w", err)
	}
	a.ID = id
	return nil
}

// List returns anomalies newest first. An empty symbol lists across all
// symbols.
func (r *Repository) List(ctx context.Context, symbol string, limit int) ([]quality.Anomaly, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, symbol, timeframe, kind, detected_at, details
		FROM anomalies ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if symbol != "" {
		query = `SELECT id, symbol, timeframe, kind, detected_at, details
			FROM anomalies WHERE symbol = ? ORDER BY id DESC LIMIT ?`
		args = []any{symbol, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []quality.Anomaly
	for rows.Next() {
		var a quality.Anomaly
		var tf, kind, detectedAt string
		if err := rows.Scan(&a.ID, &a.Symbol, &tf, &kind, &detectedAt, &a.Details); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Timeframe = candle.Timeframe(tf)
		a.Kind = quality.Kind(kind)
		a.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
