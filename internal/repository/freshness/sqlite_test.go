package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	domain "github.com/cagrikaymak/marketsync/internal/freshness"
	"github.com/cagrikaymak/marketsync/internal/platform/sqlite"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func entry(symbol string, tf candle.Timeframe, staleness int64, status domain.Status) domain.Entry {
	return domain.Entry{
		Symbol:         symbol,
		Timeframe:      tf,
		LastComputedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		DataPointCount: 100,
		StalenessSecs:  staleness,
		Status:         status,
	}
}

func TestUpsert_ReplacesEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, entry("AAPL", candle.Timeframe1d, 3600, domain.StatusAging)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, entry("AAPL", candle.Timeframe1d, 60, domain.StatusFresh)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Status != domain.StatusFresh || got[0].StalenessSecs != 60 {
		t.Errorf("expected refreshed entry, got %+v", got[0])
	}
}

func TestList_OrderedByStaleness(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, entry("AAPL", candle.Timeframe1d, 60, domain.StatusFresh)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, entry("MSFT", candle.Timeframe1d, 90000, domain.StatusStale)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, entry("BTC-USD", candle.Timeframe1h, 7200, domain.StatusAging)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Symbol != "MSFT" || got[1].Symbol != "BTC-USD" || got[2].Symbol != "AAPL" {
		t.Errorf("expected stalest first, got %s, %s, %s", got[0].Symbol, got[1].Symbol, got[2].Symbol)
	}
}

func TestStaleCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, entry("AAPL", candle.Timeframe1d, 60, domain.StatusFresh)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, entry("MSFT", candle.Timeframe1d, 90000, domain.StatusStale)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, entry("NEW", candle.Timeframe1d, 0, domain.StatusMissing)); err != nil {
		t.Fatal(err)
	}

	n, err := repo.StaleCount(ctx)
	if err != nil {
		t.Fatalf("stale count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 (stale + missing), got %d", n)
	}
}
