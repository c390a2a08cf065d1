package failure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/cagrikaymak/marketsync/internal/failure"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record applies one observation in a single statement so concurrent units
// cannot interleave a read-modify-write. Success resets the counter, failure
// increments it, and the resulting count comes back on the same round trip.
func (r *Repository) Record(ctx context.Context, symbol string, success bool, at time.Time) (int64, error) {
	const query = `INSERT INTO failure_counters (symbol, consecutive_failures, last_status, last_checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			consecutive_failures = CASE WHEN excluded.last_status = 'success' THEN 0 ELSE failure_counters.consecutive_failures + 1 END,
			last_status = excluded.last_status,
			last_checked_at = excluded.last_checked_at
		RETURNING consecutive_failures`

	status := "failure"
	initial := int64(1)
	if success {
		status = "success"
		initial = 0
	}

	var count int64
	err := r.db.QueryRowContext(ctx, query,
		symbol, initial, status, at.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record failure counter: %w", err)
	}
	return count, nil
}

func (r *Repository) Get(ctx context.Context, symbol string) (*domain.Counter, error) {
	const query = `SELECT symbol, consecutive_failures, last_status, last_checked_at
		FROM failure_counters WHERE symbol = ?`

	var c domain.Counter
	var checkedAt string
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&c.Symbol, &c.ConsecutiveFailures, &c.LastStatus, &checkedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure counter: %w", err)
	}
	c.LastCheckedAt, _ = time.Parse(time.RFC3339, checkedAt)
	return &c, nil
}

func (r *Repository) Failing(ctx context.Context, limit int) ([]domain.Counter, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT symbol, consecutive_failures, last_status, last_checked_at
		FROM failure_counters WHERE consecutive_failures > 0
		ORDER BY consecutive_failures DESC, symbol ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failing symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Counter
	for rows.Next() {
		var c domain.Counter
		var checkedAt string
		if err := rows.Scan(&c.Symbol, &c.ConsecutiveFailures, &c.LastStatus, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan failure counter: %w", err)
		}
		c.LastCheckedAt, _ = time.Parse(time.RFC3339, checkedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
