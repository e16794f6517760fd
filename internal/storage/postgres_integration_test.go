//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("capowatch"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migration must be idempotent")
	return store
}

func TestPostgresOracleUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ratio := decimal.RequireFromString("1053000000000000000")
	oracle := Oracle{
		Address:            "0xAbC0000000000000000000000000000000000001",
		ChainID:            1,
		Network:            "mainnet",
		Description:        "wstETH/ETH capped",
		MaxYearlyGrowthBps: 500,
		SnapshotRatio:      ratio,
		SnapshotTimestamp:  1_700_000_000,
		Decimals:           8,
	}

	first, err := store.UpsertOracle(ctx, oracle)
	require.NoError(t, err)
	require.True(t, first.IsActive)
	require.True(t, first.SnapshotRatio.Equal(ratio))

	second, err := store.UpsertOracle(ctx, oracle)
	require.NoError(t, err)
	require.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	all, err := store.ListOracles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "0xabc0000000000000000000000000000000000001", all[0].Address)
}

func TestPostgresSnapshotsAndAggregations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.InsertSnapshot(ctx, Snapshot{
			OracleAddress:     "0xaa",
			ChainID:           1,
			Ratio:             decimal.NewFromInt(int64(90 + 10*i)),
			Price:             decimal.NewFromInt(1000),
			SnapshotRatio:     decimal.NewFromInt(90),
			CurrentGrowthRate: decimal.RequireFromString("4.25"),
			Metadata:          SnapshotMetadata{MaxRatio: decimal.NewFromInt(120), OnChainTimestamp: 1},
			Timestamp:         day.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	snaps, err := store.ListSnapshotsBetween(ctx, "0xaa", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.True(t, snaps[2].Metadata.MaxRatio.Equal(decimal.NewFromInt(120)))

	_, err = store.LatestSnapshotAtOrBefore(ctx, "0xaa", day.Add(-time.Minute))
	require.True(t, errors.Is(err, ErrNotFound))

	agg := DailyAggregation{OracleAddress: "0xaa", ChainID: 1, Date: day, TotalCount: 3, CappedCount: 1,
		AvgRatio: decimal.NewFromInt(100), MinRatio: decimal.NewFromInt(90), MaxRatio: decimal.NewFromInt(110),
		AvgPrice: decimal.NewFromInt(1000), MinPrice: decimal.NewFromInt(1000), MaxPrice: decimal.NewFromInt(1000)}
	require.NoError(t, store.UpsertDailyAggregation(ctx, agg))
	agg.CappedCount = 2
	require.NoError(t, store.UpsertDailyAggregation(ctx, agg))

	list, err := store.ListDailyAggregations(ctx, AggregationFilter{OracleAddress: "0xaa"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].CappedCount)
	require.Nil(t, list[0].Cap)
}

func TestPostgresAlertLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	alert, err := store.InsertAlert(ctx, Alert{OracleAddress: "0xaa", ChainID: 1, Type: AlertCapped,
		Severity: SeverityWarning, Message: "capped", Status: AlertPending, Timestamp: now, Data: []byte(`{"kind":"capped"}`)})
	require.NoError(t, err)
	require.NotZero(t, alert.ID)

	_, err = store.LatestDeliveredAlert(ctx, "0xaa", AlertCapped)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.MarkAlertSent(ctx, alert.ID, now))
	got, err := store.LatestDeliveredAlert(ctx, "0xaa", AlertCapped)
	require.NoError(t, err)
	require.Equal(t, AlertSent, got.Status)
	require.NotNil(t, got.SentAt)

	require.ErrorIs(t, store.MarkAlertFailed(ctx, 9999, "boom"), ErrNotFound)
}
