package symbol

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/registry"
)

// Repository is the persistent symbol registry. Backfill runs read their work
// units from it at the start of every run, so rows added or deactivated
// between runs take effect without a restart.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListActive(ctx context.Context) ([]registry.WorkUnit, error) {
	const query = `SELECT symbol, asset_class, timeframe FROM symbols
		WHERE active = 1 ORDER BY symbol ASC, timeframe ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []registry.WorkUnit
	for rows.Next() {
		var u registry.WorkUnit
		var class, tf string
		if err := rows.Scan(&u.Symbol, &class, &tf); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		u.AssetClass = candle.AssetClass(class)
		u.Timeframe = candle.Timeframe(tf)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) Add(ctx context.Context, u registry.WorkUnit) error {
	const query = `INSERT INTO symbols (symbol, asset_class, timeframe, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (symbol, timeframe) DO UPDATE SET
			asset_class = excluded.asset_class,
			active = 1`

	_, err := r.db.ExecContext(ctx, query, u.Symbol, string(u.AssetClass), string(u.Timeframe))
	if err != nil {
		return fmt.Errorf("add symbol: %w", err)
	}
	return nil
}

func (r *Repository) Deactivate(ctx context.Context, symbol string, tf candle.Timeframe) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE symbols SET active = 0 WHERE symbol = ? AND timeframe = ?",
		symbol, string(tf))
	if err != nil {
		return fmt.Errorf("deactivate symbol: %w", err)
	}
	return nil
}

// SeedIfEmpty bootstraps the registry from configuration on first start.
// An already populated table is left untouched.
func (r *Repository) SeedIfEmpty(ctx context.Context, units []registry.WorkUnit) error {
	if len(units) == 0 {
		return nil
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symbols").Scan(&n); err != nil {
		return fmt.Errorf("count symbols: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, u := range units {
		if err := r.Add(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
