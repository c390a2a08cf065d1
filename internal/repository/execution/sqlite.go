package execution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	domain "github.com/cagrikaymak/marketsync/internal/execution"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateExecution(ctx context.Context, rec *domain.Record) error {
	const query = `INSERT INTO executions (uid, started_at, status, total_units, successful_units, failed_units, total_records, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		rec.UID, rec.StartedAt.UTC().Format(time.RFC3339), string(rec.Status),
		rec.TotalUnits, rec.SuccessfulUnits, rec.FailedUnits, rec.TotalRecords, rec.Error)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("execution id: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *Repository) UpdateExecution(ctx context.Context, rec *domain.Record) error {
	const query = `UPDATE executions SET completed_at = ?, status = ?, total_units = ?,
		successful_units = ?, failed_units = ?, total_records = ?, error = ?
		WHERE id = ?`

	var completedAt sql.NullString
	if rec.CompletedAt != nil {
		completedAt = sql.NullString{String: rec.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		completedAt, string(rec.Status), rec.TotalUnits,
		rec.SuccessfulUnits, rec.FailedUnits, rec.TotalRecords, rec.Error, rec.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

const executionColumns = "id, uid, started_at, completed_at, status, total_units, successful_units, failed_units, total_records, error"

func (r *Repository) GetExecution(ctx context.Context, id int64) (*domain.Record, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE id = ?"
	rec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) LastExecution(ctx context.Context) (*domain.Record, error) {
	query := "SELECT " + executionColumns + " FROM executions ORDER BY id DESC LIMIT 1"
	rec, err := scanExecution(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) ListExecutions(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + executionColumns + " FROM executions ORDER BY id DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *Repository) CreateUnit(ctx context.Context, us *domain.UnitStatus) error {
	const query = `INSERT INTO unit_statuses (execution_id, symbol, timeframe, status, records_fetched, records_inserted, duration_secs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		us.ExecutionID, us.Symbol, string(us.Timeframe), string(us.Status),
		us.RecordsFetched, us.RecordsInserted, us.DurationSecs, us.Error)
	if err != nil {
		return fmt.Errorf("create unit status: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("unit status id: %w", err)
	}
	us.ID = id
	return nil
}

func (r *Repository) UpdateUnit(ctx context.Context, us *domain.UnitStatus) error {
	const query = `UPDATE unit_statuses SET status = ?, records_fetched = ?, records_inserted = ?,
		duration_secs = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(us.Status), us.RecordsFetched, us.RecordsInserted,
		us.DurationSecs, us.Error, nullTime(us.StartedAt), nullTime(us.FinishedAt), us.ID)
	if err != nil {
		return fmt.Errorf("update unit status: %w", err)
	}
	return nil
}

func (r *Repository) ListUnits(ctx context.Context, executionID int64) ([]domain.UnitStatus, error) {
	const query = `SELECT id, execution_id, symbol, timeframe, status, records_fetched, records_inserted, duration_secs, error, started_at, finished_at
		FROM unit_statuses WHERE execution_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list unit statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.UnitStatus
	for rows.Next() {
		var us domain.UnitStatus
		var tf, status string
		var errStr, startedAt, finishedAt sql.NullString
		if err := rows.Scan(&us.ID, &us.ExecutionID, &us.Symbol, &tf, &status,
			&us.RecordsFetched, &us.RecordsInserted, &us.DurationSecs, &errStr, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan unit status: %w", err)
		}
		us.Timeframe = candle.Timeframe(tf)
		us.Status = domain.UnitState(status)
		us.Error = errStr.String
		us.StartedAt = parseNullTime(startedAt)
		us.FinishedAt = parseNullTime(finishedAt)
		out = append(out, us)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var startedAt, status string
	var completedAt, errStr sql.NullString
	err := row.Scan(&rec.ID, &rec.UID, &startedAt, &completedAt, &status,
		&rec.TotalUnits, &rec.SuccessfulUnits, &rec.FailedUnits, &rec.TotalRecords, &errStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	rec.CompletedAt = parseNullTime(completedAt)
	rec.Status = domain.Status(status)
	rec.Error = errStr.String
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
