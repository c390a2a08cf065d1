package symbol

import (
	"context"
	"testing"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/platform/sqlite"
	"github.com/cagrikaymak/marketsync/internal/registry"
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

func TestAdd_And_ListActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	units := []registry.WorkUnit{
		{Symbol: "MSFT", AssetClass: candle.AssetEquity, Timeframe: candle.Timeframe1d},
		{Symbol: "AAPL", AssetClass: candle.AssetEquity, Timeframe: candle.Timeframe1d},
		{Symbol: "AAPL", AssetClass: candle.AssetEquity, Timeframe: candle.Timeframe1h},
	}
	for _, u := range units {
		if err := repo.Add(ctx, u); err != nil {
			t.Fatalf("add %s: %v", u, err)
		}
	}

	got, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 units, got %d", len(got))
	}
	// Ordered by symbol then timeframe.
	if got[0].Symbol != "AAPL" || got[2].Symbol != "MSFT" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestDeactivate_HidesUnit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	u := registry.WorkUnit{Symbol: "AAPL", AssetClass: candle.AssetEquity, Timeframe: candle.Timeframe1d}
	if err := repo.Add(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := repo.Deactivate(ctx, "AAPL", candle.Timeframe1d); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	got, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no active units, got %v", got)
	}

	// Re-adding reactivates the same row.
	if err := repo.Add(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 active unit after re-add, got %d", len(got))
	}
}

func TestSeedIfEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	seed, err := registry.ParseSeed("AAPL:equity:1d,BTC-USD:crypto:1h")
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if err := repo.SeedIfEmpty(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 seeded units, got %d", len(got))
	}

	// A second seed against a populated table is a no-op.
	more, err := registry.ParseSeed("MSFT:equity:1d")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SeedIfEmpty(ctx, more); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	got, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected seed to be a no-op, got %d units", len(got))
	}
}
