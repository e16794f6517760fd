package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"capowatch/internal/aggregator"
	"capowatch/internal/storage"
)

// Aggregate recomputes every UTC day in [From, To).
func (a *App) Aggregate(ctx context.Context, opts AggregateOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	agg := aggregator.New(store, store, store, a.Logger)

	start := opts.From.UTC().Truncate(24 * time.Hour)
	end := opts.To.UTC()
	processed, failed, rows := 0, 0, 0
	for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		written, err := agg.AggregateDay(ctx, day)
		rows += written
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("day", day).Msg("aggregation failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("days", processed).Int("failed", failed).Int("rows", rows).Msg("aggregation completed")
	if failed > 0 {
		return errors.New("some days failed to aggregate, check the logs")
	}
	return nil
}

// Aggregations prints stored daily aggregations.
func (a *App) Aggregations(ctx context.Context, opts AggregationsOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	agg := aggregator.New(store, store, store, a.Logger)
	rows, err := agg.ListDailyAggregations(ctx, storage.AggregationFilter{OracleAddress: opts.Oracle, AssetID: opts.Asset})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no aggregations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tOracle\tName\tAvg Ratio\tMin Ratio\tMax Ratio\tAvg Price\tCap\tCapped\tTotal")
	for _, r := range rows {
		capValue := "-"
		if r.Cap != nil {
			capValue = r.Cap.String()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.Date.UTC().Format(time.DateOnly),
			r.OracleAddress,
			sanitizeInline(r.OracleName),
			r.AvgRatio.String(),
			r.MinRatio.String(),
			r.MaxRatio.String(),
			r.AvgPrice.String(),
			capValue,
			r.CappedCount,
			r.TotalCount,
		)
	}
	return writer.Flush()
}
