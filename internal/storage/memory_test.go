package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemoryUpsertOracleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := base
	mem.SetClock(func() time.Time { return now })

	oracle := Oracle{Address: "0xABCDEF", ChainID: 1, Network: "mainnet", MaxYearlyGrowthBps: 500, SnapshotRatio: decimal.NewFromInt(1)}
	first, err := mem.UpsertOracle(ctx, oracle)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Address != "0xabcdef" {
		t.Fatalf("address should be lowercased, got %s", first.Address)
	}

	if err := mem.SetOracleActive(ctx, "0xabcdef", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	now = base.Add(time.Hour)
	second, err := mem.UpsertOracle(ctx, oracle)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, _ := mem.ListOracles(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one oracle row, got %d", len(all))
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at should advance: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.DiscoveredAt.Equal(first.DiscoveredAt) {
		t.Fatal("discovered_at must be preserved")
	}
	if second.IsActive {
		t.Fatal("re-discovery must not reactivate an oracle")
	}
	active, _ := mem.ListActiveOracles(ctx)
	if len(active) != 0 {
		t.Fatalf("inactive oracle listed as active")
	}
}

func TestMemoryLatestSnapshotAtOrBefore(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, _ = mem.InsertSnapshot(ctx, Snapshot{
			OracleAddress: "0xaa",
			Price:         decimal.NewFromInt(int64(100 + i)),
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
		})
	}

	got, err := mem.LatestSnapshotAtOrBefore(ctx, "0xAA", base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !got.Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("expected second snapshot, got price %s", got.Price)
	}

	if _, err := mem.LatestSnapshotAtOrBefore(ctx, "0xaa", base.Add(-time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	window, _ := mem.ListSnapshotsBetween(ctx, "0xaa", base, base.Add(2*time.Hour))
	if len(window) != 2 {
		t.Fatalf("half-open window should contain 2 snapshots, got %d", len(window))
	}
}

func TestMemoryAggregationOverwrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, _ = mem.UpsertOracle(ctx, Oracle{Address: "0xaa", AssetAddress: "0xasset"})
	_ = mem.UpsertDailyAggregation(ctx, DailyAggregation{OracleAddress: "0xaa", Date: day, TotalCount: 1})
	_ = mem.UpsertDailyAggregation(ctx, DailyAggregation{OracleAddress: "0xaa", Date: day, TotalCount: 5})

	all, _ := mem.ListDailyAggregations(ctx, AggregationFilter{})
	if len(all) != 1 || all[0].TotalCount != 5 {
		t.Fatalf("recompute should overwrite: %+v", all)
	}

	byAsset, _ := mem.ListDailyAggregations(ctx, AggregationFilter{AssetID: "0xASSET"})
	if len(byAsset) != 1 {
		t.Fatalf("asset filter should match, got %d", len(byAsset))
	}
	none, _ := mem.ListDailyAggregations(ctx, AggregationFilter{AssetID: "0xother"})
	if len(none) != 0 {
		t.Fatalf("asset filter should exclude, got %d", len(none))
	}
}

func TestMemoryLatestDeliveredAlert(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	now := time.Now().UTC()

	pending, _ := mem.InsertAlert(ctx, Alert{OracleAddress: "0xaa", Type: AlertCapped, Severity: SeverityWarning, Status: AlertPending, Timestamp: now})
	if _, err := mem.LatestDeliveredAlert(ctx, "0xaa", AlertCapped); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending warning should not count, got %v", err)
	}

	_ = mem.MarkAlertSent(ctx, pending.ID, now)
	got, err := mem.LatestDeliveredAlert(ctx, "0xaa", AlertCapped)
	if err != nil || got.ID != pending.ID {
		t.Fatalf("sent alert should be returned: %v %+v", err, got)
	}

	_, _ = mem.InsertAlert(ctx, Alert{OracleAddress: "0xaa", Type: AlertSlowGrowth, Severity: SeverityInfo, Status: AlertPending, Timestamp: now})
	if _, err := mem.LatestDeliveredAlert(ctx, "0xaa", AlertSlowGrowth); err != nil {
		t.Fatalf("pending info alert counts as delivered: %v", err)
	}
}
