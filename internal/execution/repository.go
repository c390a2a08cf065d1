package execution

import "context"

type Repository interface {
	CreateExecution(ctx context.Context, rec *Record) error
	UpdateExecution(ctx context.Context, rec *Record) error
	GetExecution(ctx context.Context, id int64) (*Record, error)
	LastExecution(ctx context.Context) (*Record, error)
	ListExecutions(ctx context.Context, limit int) ([]Record, error)

	CreateUnit(ctx context.Context, us *UnitStatus) error
	UpdateUnit(ctx context.Context, us *UnitStatus) error
	ListUnits(ctx context.Context, executionID int64) ([]UnitStatus, error)
}
