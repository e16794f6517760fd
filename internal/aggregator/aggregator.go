// Package aggregator rolls the snapshots of one UTC day into a single row
// per oracle.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"capowatch/internal/metrics"
	"capowatch/internal/storage"
)

const day = 24 * time.Hour

// Aggregator computes daily aggregations.
type Aggregator struct {
	oracles      storage.OracleStore
	snapshots    storage.SnapshotStore
	aggregations storage.AggregationStore
	logger       zerolog.Logger
}

// New constructs an aggregator.
func New(oracles storage.OracleStore, snapshots storage.SnapshotStore, aggregations storage.AggregationStore, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		oracles:      oracles,
		snapshots:    snapshots,
		aggregations: aggregations,
		logger:       logger.With().Str("component", "aggregator").Logger(),
	}
}

// AggregateDailyData aggregates the day that ended at todayMidnight.
func (a *Aggregator) AggregateDailyData(ctx context.Context, todayMidnight time.Time) (int, error) {
	return a.AggregateDay(ctx, todayMidnight.Add(-day))
}

// AggregateDay recomputes [day, day+24h) in UTC for every known oracle and
// returns the number of rows written. Oracles without snapshots are skipped.
func (a *Aggregator) AggregateDay(ctx context.Context, date time.Time) (int, error) {
	start := truncateDay(date)
	end := start.Add(day)

	oracles, err := a.oracles.ListOracles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list oracles: %w", err)
	}

	var (
		written int
		errs    []error
	)
	for _, oracle := range oracles {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		snaps, err := a.snapshots.ListSnapshotsBetween(ctx, oracle.Address, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("list snapshots of %s: %w", oracle.Address, err))
			continue
		}
		if len(snaps) == 0 {
			a.logger.Info().Str("oracle", oracle.Address).Time("day", start).Msg("no snapshots for day, skipping")
			continue
		}

		agg := Aggregate(oracle, start, snaps)
		if err := a.aggregations.UpsertDailyAggregation(ctx, agg); err != nil {
			errs = append(errs, fmt.Errorf("upsert aggregation of %s: %w", oracle.Address, err))
			continue
		}
		written++
		metrics.AggregationsWritten.Inc()
		a.logger.Debug().Str("oracle", oracle.Address).Time("day", start).Int("snapshots", agg.TotalCount).Msg("daily aggregation written")
	}

	a.logger.Info().Time("day", start).Int("rows", written).Int("errors", len(errs)).Msg("daily aggregation finished")
	return written, errors.Join(errs...)
}

// ListDailyAggregations returns stored rows matching filter.
func (a *Aggregator) ListDailyAggregations(ctx context.Context, filter storage.AggregationFilter) ([]storage.DailyAggregation, error) {
	return a.aggregations.ListDailyAggregations(ctx, filter)
}

// Aggregate reduces snaps, which must be in timestamp order, to one row.
// Means are integer means truncated toward zero.
func Aggregate(oracle storage.Oracle, date time.Time, snaps []storage.Snapshot) storage.DailyAggregation {
	agg := storage.DailyAggregation{
		OracleAddress: oracle.Address,
		OracleName:    oracle.Description,
		ChainID:       oracle.ChainID,
		Date:          truncateDay(date),
		TotalCount:    len(snaps),
	}
	if len(snaps) == 0 {
		return agg
	}

	ratioSum, priceSum := new(big.Int), new(big.Int)
	agg.MinRatio, agg.MaxRatio = snaps[0].Ratio, snaps[0].Ratio
	agg.MinPrice, agg.MaxPrice = snaps[0].Price, snaps[0].Price

	for _, s := range snaps {
		ratioSum.Add(ratioSum, s.Ratio.BigInt())
		priceSum.Add(priceSum, s.Price.BigInt())
		agg.MinRatio = decimal.Min(agg.MinRatio, s.Ratio)
		agg.MaxRatio = decimal.Max(agg.MaxRatio, s.Ratio)
		agg.MinPrice = decimal.Min(agg.MinPrice, s.Price)
		agg.MaxPrice = decimal.Max(agg.MaxPrice, s.Price)
		if s.IsCapped {
			agg.CappedCount++
		}
	}

	n := big.NewInt(int64(len(snaps)))
	agg.AvgRatio = decimal.NewFromBigInt(ratioSum.Quo(ratioSum, n), 0)
	agg.AvgPrice = decimal.NewFromBigInt(priceSum.Quo(priceSum, n), 0)

	if last := snaps[len(snaps)-1].Metadata.MaxRatio; !last.IsZero() {
		agg.Cap = &last
	}
	return agg
}

func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}
