// Package backfill drives ingestion runs: it loads work units from the
// registry, partitions them into concurrency-limited staggered groups, and
// runs the fetch -> validate -> store -> quality-check -> track pipeline for
// each unit.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/execution"
	"github.com/cagrikaymak/marketsync/internal/failure"
	"github.com/cagrikaymak/marketsync/internal/freshness"
	"github.com/cagrikaymak/marketsync/internal/provider"
	"github.com/cagrikaymak/marketsync/internal/quality"
	"github.com/cagrikaymak/marketsync/internal/registry"
)

type Config struct {
	// MaxConcurrent bounds how many units run simultaneously within a group.
	MaxConcurrent int
	// Stagger offsets each task's start within a group by index*Stagger to
	// smooth request bursts.
	Stagger time.Duration
	// GroupPause is the idle period between groups, giving the rate limiter
	// headroom to recover.
	GroupPause time.Duration
	// Lookback bounds the fetch range for units with no stored data.
	Lookback time.Duration
	// ScanWindow is passed to the quality engine after each unit.
	ScanWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.Stagger < 0 {
		c.Stagger = 0
	}
	if c.GroupPause < 0 {
		c.GroupPause = 0
	}
	if c.Lookback <= 0 {
		c.Lookback = 30 * 24 * time.Hour
	}
	if c.ScanWindow <= 0 {
		c.ScanWindow = 30 * 24 * time.Hour
	}
	return c
}

// Orchestrator is the top-level run driver. Trigger is single-flight: at most
// one run is in progress per process, and triggering during a run is a no-op
// that returns the in-flight record.
type Orchestrator struct {
	baseCtx  context.Context
	registry registry.Registry
	client   *provider.Client
	candles  candle.Repository
	quality  *quality.Engine
	fresh    *freshness.Cache
	failures *failure.Tracker
	tracker  *execution.Tracker
	cfg      Config

	mu      sync.Mutex
	current *execution.Record
	stopped atomic.Bool
}

// New creates an orchestrator. baseCtx is the base context for spawned runs;
// cancelling it stops new groups from starting while in-flight units drain.
func New(
	baseCtx context.Context,
	reg registry.Registry,
	client *provider.Client,
	candles candle.Repository,
	qual *quality.Engine,
	fresh *freshness.Cache,
	failures *failure.Tracker,
	tracker *execution.Tracker,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		baseCtx:  baseCtx,
		registry: reg,
		client:   client,
		candles:  candles,
		quality:  qual,
		fresh:    fresh,
		failures: failures,
		tracker:  tracker,
		cfg:      cfg.withDefaults(),
	}
}

// Trigger starts a run in the background and returns its record. When a run
// is already in progress it returns that run's record with started=false. A
// unit failure never surfaces here; only failing to open the run record does.
func (o *Orchestrator) Trigger(ctx context.Context) (rec *execution.Record, started bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		slog.Info("backfill already running, trigger ignored", "execution", o.current.ID)
		cp := *o.current
		return &cp, false, nil
	}

	rec, err = o.tracker.Create(ctx)
	if err != nil {
		return nil, false, err
	}

	o.current = rec
	o.stopped.Store(false)
	go o.run(o.baseCtx, rec)

	// The run goroutine owns rec from here on; callers get a snapshot.
	cp := *rec
	return &cp, true, nil
}

// Running reports a snapshot of the in-flight run, if any.
func (o *Orchestrator) Running() (*execution.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil, false
	}
	cp := *o.current
	return &cp, true
}

// Stop prevents new groups from starting. In-flight units run to completion
// rather than aborting mid-write, avoiding partially-applied storage state.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

func (o *Orchestrator) run(ctx context.Context, rec *execution.Record) {
	// Work units are read fresh each run.
	units, err := o.registry.ListActive(ctx)
	if err != nil {
		o.abort(ctx, rec, fmt.Errorf("load work units: %w", err))
		return
	}
	if len(units) == 0 {
		o.abort(ctx, rec, fmt.Errorf("no active work units"))
		return
	}
	o.mu.Lock()
	rec.TotalUnits = int64(len(units))
	o.mu.Unlock()

	statuses := make([]*execution.UnitStatus, len(units))
	for i, u := range units {
		us, err := o.tracker.NewUnit(ctx, rec.ID, u.Symbol, u.Timeframe)
		if err != nil {
			o.abort(ctx, rec, fmt.Errorf("create unit statuses: %w", err))
			return
		}
		statuses[i] = us
	}

	slog.Info("backfill run starting", "execution", rec.ID, "units", len(units),
		"maxConcurrent", o.cfg.MaxConcurrent, "stagger", o.cfg.Stagger)

	var successful, failed, records atomic.Int64

	groups := partition(len(units), o.cfg.MaxConcurrent)
	for gi, g := range groups {
		if o.stopRequested(ctx) {
			slog.Warn("backfill stopping before group", "execution", rec.ID, "group", gi)
			break
		}

		// One task per unit, started with a precomputed offset. Unit errors
		// land in the unit status, never in the group error, so the whole
		// group always settles before we move on.
		eg, gctx := errgroup.WithContext(ctx)
		for i := g.start; i < g.end; i++ {
			unit, us := units[i], statuses[i]
			offset := time.Duration(i-g.start) * o.cfg.Stagger
			eg.Go(func() error {
				if offset > 0 {
					if err := sleepCtx(gctx, offset); err != nil {
						return nil
					}
				}
				if ok, inserted := o.processUnit(gctx, unit, us); ok {
					successful.Add(1)
					records.Add(inserted)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = eg.Wait()

		if gi < len(groups)-1 && o.cfg.GroupPause > 0 {
			if err := sleepCtx(ctx, o.cfg.GroupPause); err != nil {
				break
			}
		}
	}

	o.mu.Lock()
	rec.SuccessfulUnits = successful.Load()
	rec.FailedUnits = failed.Load()
	rec.TotalRecords = records.Load()
	o.mu.Unlock()

	// Release the run before finalizing so snapshots never observe the
	// record mid-write.
	o.release()
	if err := o.tracker.Finalize(ctx, rec, execution.StatusCompleted, ""); err != nil {
		slog.Error("failed to finalize execution", "execution", rec.ID, "error", err)
	}
}

// abort finalizes a run that could not even start. This is the only path
// that produces StatusFailed; unit failures always finalize as completed.
func (o *Orchestrator) abort(ctx context.Context, rec *execution.Record, cause error) {
	slog.Error("backfill run aborted", "execution", rec.ID, "error", cause)
	o.release()
	if err := o.tracker.Finalize(ctx, rec, execution.StatusFailed, cause.Error()); err != nil {
		slog.Error("failed to finalize aborted execution", "execution", rec.ID, "error", err)
	}
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
}

// processUnit runs one work unit through the full pipeline. All failure
// modes are absorbed into the unit status and the failure tracker, isolating
// the unit from the rest of the run.
func (o *Orchestrator) processUnit(ctx context.Context, unit registry.WorkUnit, us *execution.UnitStatus) (ok bool, inserted int64) {
	if err := o.tracker.Advance(ctx, us, execution.UnitInProgress); err != nil {
		slog.Error("unit could not start", "unit", unit.String(), "error", err)
		return false, 0
	}

	fail := func(stage string, err error) {
		us.Error = fmt.Sprintf("%s: %v", stage, err)
		slog.Error("unit failed", "execution", us.ExecutionID, "unit", unit.String(),
			"stage", stage, "error", err)
		if advErr := o.tracker.Advance(ctx, us, execution.UnitFailed); advErr != nil {
			slog.Error("failed to record unit failure", "unit", unit.String(), "error", advErr)
		}
		if res, recErr := o.failures.Record(ctx, unit.Symbol, false); recErr != nil {
			slog.Error("failed to record failure counter", "unit", unit.String(), "error", recErr)
		} else if res.ShouldAlert {
			slog.Warn("unit failure alert threshold reached", "unit", unit.String(),
				"consecutiveFailures", res.ConsecutiveFailures)
		}
	}

	now := time.Now().UTC()
	from := now.Add(-o.cfg.Lookback)
	// Resume from the last stored point; the overlap is harmless because the
	// upsert is idempotent.
	latest, err := o.candles.Latest(ctx, unit.Symbol, unit.Timeframe)
	if err != nil {
		fail("resume point", err)
		return false, 0
	}
	if latest != nil && latest.Ts.After(from) {
		from = latest.Ts
	}

	rows, err := o.client.Fetch(ctx, unit.Symbol, unit.Timeframe, from, now)
	if err != nil {
		fail("fetch", err)
		return false, 0
	}
	us.RecordsFetched = int64(len(rows))

	valid, rejected := candle.ValidateBatch(rows)
	for _, r := range rejected {
		slog.Warn("rejected malformed row", "execution", us.ExecutionID, "unit", unit.String(), "reason", r.Reason)
	}

	inserted, err = o.candles.Upsert(ctx, valid)
	if err != nil {
		fail("store", err)
		return false, 0
	}
	us.RecordsInserted = inserted

	if _, err := o.quality.Scan(ctx, unit.Symbol, unit.AssetClass, unit.Timeframe, o.cfg.ScanWindow); err != nil {
		fail("quality scan", err)
		return false, 0
	}

	count, err := o.candles.Count(ctx, unit.Symbol, unit.Timeframe)
	if err != nil {
		fail("count", err)
		return false, 0
	}
	var lastPoint time.Time
	if latest, err = o.candles.Latest(ctx, unit.Symbol, unit.Timeframe); err != nil {
		fail("latest", err)
		return false, 0
	} else if latest != nil {
		lastPoint = latest.Ts
	}
	if _, err := o.fresh.Update(ctx, unit.Symbol, unit.Timeframe, lastPoint, count); err != nil {
		fail("freshness", err)
		return false, 0
	}

	// The same logical step that records the success resets the counter.
	if _, err := o.failures.Record(ctx, unit.Symbol, true); err != nil {
		slog.Error("failed to reset failure counter", "unit", unit.String(), "error", err)
	}

	if err := o.tracker.Advance(ctx, us, execution.UnitCompleted); err != nil {
		slog.Error("failed to complete unit status", "unit", unit.String(), "error", err)
	}

	slog.Info("unit completed", "execution", us.ExecutionID, "unit", unit.String(),
		"fetched", us.RecordsFetched, "inserted", us.RecordsInserted)
	return true, inserted
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	return o.stopped.Load() || ctx.Err() != nil
}

type span struct {
	start, end int
}

// partition splits n units into ordered groups of at most size each. Groups
// run strictly in order; a later group never starts before the previous one
// fully settles.
func partition(n, size int) []span {
	if size <= 0 {
		size = 1
	}
	var out []span
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{start, end})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
