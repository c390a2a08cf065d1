package candle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/cagrikaymak/marketsync/internal/candle"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const batchSize = 200

// Upsert writes rows keyed on (symbol, timeframe, ts). New rows are counted;
// rows that already exist are refreshed in place when the incoming fetch is
// newer, so retried and overlapping writes stay idempotent.
func (r *Repository) Upsert(ctx context.Context, rows []domain.Candle) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*9)
		for j, c := range batch {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			fetchedAt := c.FetchedAt
			if fetchedAt.IsZero() {
				fetchedAt = time.Now().UTC()
			}
			args = append(args, c.Symbol, string(c.Timeframe), c.Ts.UTC().Format(time.RFC3339),
				c.Open, c.High, c.Low, c.Close, c.Volume, fetchedAt.UTC().Format(time.RFC3339))
		}

		// Two passes: INSERT OR IGNORE reports exactly how many rows are new,
		// then the conflict-update refreshes rows a newer fetch re-delivered.
		insertQuery := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			"INSERT OR IGNORE INTO candles (symbol, timeframe, ts, open, high, low, close, volume, fetched_at) VALUES %s",
			strings.Join(placeholders, ", "),
		)
		res, err := r.db.ExecContext(ctx, insertQuery, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert candles: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n

		refreshQuery := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			`INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume, fetched_at) VALUES %s
			ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume, fetched_at = excluded.fetched_at
			WHERE excluded.fetched_at > candles.fetched_at`,
			strings.Join(placeholders, ", "),
		)
		if _, err := r.db.ExecContext(ctx, refreshQuery, args...); err != nil {
			return inserted, fmt.Errorf("refresh candles: %w", err)
		}
	}

	return inserted, nil
}

func (r *Repository) Query(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Candle, error) {
	const query = `SELECT id, symbol, timeframe, ts, open, high, low, close, volume, fetched_at
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, string(tf),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Latest(ctx context.Context, symbol string, tf domain.Timeframe) (*domain.Candle, error) {
	const query = `SELECT id, symbol, timeframe, ts, open, high, low, close, volume, fetched_at
		FROM candles WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, symbol, string(tf))
	c, err := scanCandle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Count(ctx context.Context, symbol string, tf domain.Timeframe) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM candles WHERE symbol = ? AND timeframe = ?",
		symbol, string(tf)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return n, nil
}

// FindDuplicates groups rows sharing one (symbol, timeframe, ts) key. The
// unique index prevents new duplicates; this exists for datasets that predate
// it. The most recently fetched row of each group is the keeper.
func (r *Repository) FindDuplicates(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.DuplicateGroup, error) {
	const keysQuery = `SELECT ts FROM candles
		WHERE symbol = ? AND timeframe = ?
		GROUP BY ts HAVING COUNT(*) > 1
		ORDER BY ts ASC`

	keyRows, err := r.db.QueryContext(ctx, keysQuery, symbol, string(tf))
	if err != nil {
		return nil, fmt.Errorf("find duplicate keys: %w", err)
	}
	defer func() { _ = keyRows.Close() }()

	var keys []string
	for keyRows.Next() {
		var ts string
		if err := keyRows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan duplicate key: %w", err)
		}
		keys = append(keys, ts)
	}
	if err := keyRows.Err(); err != nil {
		return nil, err
	}

	var groups []domain.DuplicateGroup
	for _, tsStr := range keys {
		const idsQuery = `SELECT id FROM candles
			WHERE symbol = ? AND timeframe = ? AND ts = ?
			ORDER BY fetched_at DESC, id DESC`

		idRows, err := r.db.QueryContext(ctx, idsQuery, symbol, string(tf), tsStr)
		if err != nil {
			return nil, fmt.Errorf("list duplicate ids: %w", err)
		}

		var ids []int64
		for idRows.Next() {
			var id int64
			if err := idRows.Scan(&id); err != nil {
				_ = idRows.Close()
				return nil, fmt.Errorf("scan duplicate id: %w", err)
			}
			ids = append(ids, id)
		}
		_ = idRows.Close()
		if err := idRows.Err(); err != nil {
			return nil, err
		}
		if len(ids) < 2 {
			continue
		}

		ts, _ := time.Parse(time.RFC3339, tsStr)
		groups = append(groups, domain.DuplicateGroup{
			Symbol:    symbol,
			Timeframe: tf,
			Ts:        ts,
			IDs:       ids,
			KeepID:    ids[0],
		})
	}

	return groups, nil
}

// Delete removes rows by id inside one transaction, so a cleanup pass either
// fully applies or not at all.
func (r *Repository) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int64
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for j, id := range batch {
			placeholders[j] = "?"
			args[j] = id
		}

		query := fmt.Sprintf("DELETE FROM candles WHERE id IN (%s)", //nolint:gosec // placeholders are not user input
			strings.Join(placeholders, ", "))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("delete candles: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandle(row rowScanner) (domain.Candle, error) {
	var c domain.Candle
	var tf, tsStr, fetchedStr string
	if err := row.Scan(&c.ID, &c.Symbol, &tf, &tsStr, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &fetchedStr); err != nil {
		if err == sql.ErrNoRows {
			return c, err
		}
		return c, fmt.Errorf("scan candle: %w", err)
	}
	c.Timeframe = domain.Timeframe(tf)
	var err error
	if c.Ts, err = time.Parse(time.RFC3339, tsStr); err != nil {
		return c, fmt.Errorf("parse candle ts %q: %w", tsStr, err)
	}
	if c.FetchedAt, err = time.Parse(time.RFC3339, fetchedStr); err != nil {
		return c, fmt.Errorf("parse candle fetched_at %q: %w", fetchedStr, err)
	}
	return c, nil
}
