// Package execution tracks run-level and unit-level state for backfill runs,
// giving the system resumability and an audit trail.
package execution

import (
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type UnitState string

const (
	UnitPending    UnitState = "pending"
	UnitInProgress UnitState = "in_progress"
	UnitCompleted  UnitState = "completed"
	UnitFailed     UnitState = "failed"
)

// rank orders unit states so status can only advance forward.
func (s UnitState) rank() int {
	switch s {
	case UnitPending:
		return 0
	case UnitInProgress:
		return 1
	case UnitCompleted, UnitFailed:
		return 2
	default:
		return -1
	}
}

// Record is one orchestration run. It is created with StatusRunning and
// finalized exactly once.
type Record struct {
	ID              int64      `json:"id"`
	UID             string     `json:"uid"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Status          Status     `json:"status"`
	TotalUnits      int64      `json:"totalUnits"`
	SuccessfulUnits int64      `json:"successfulUnits"`
	FailedUnits     int64      `json:"failedUnits"`
	TotalRecords    int64      `json:"totalRecords"`
	Error           string     `json:"error,omitempty"`
}

// UnitStatus is one work unit's outcome within a run.
type UnitStatus struct {
	ID              int64            `json:"id"`
	ExecutionID     int64            `json:"executionId"`
	Symbol          string           `json:"symbol"`
	Timeframe       candle.Timeframe `json:"timeframe"`
	Status          UnitState        `json:"status"`
	RecordsFetched  int64            `json:"recordsFetched"`
	RecordsInserted int64            `json:"recordsInserted"`
	DurationSecs    float64          `json:"durationSecs"`
	Error           string           `json:"error,omitempty"`
	StartedAt       *time.Time       `json:"startedAt,omitempty"`
	FinishedAt      *time.Time       `json:"finishedAt,omitempty"`
}
