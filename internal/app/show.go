package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"capowatch/internal/alerting"
	"capowatch/internal/storage"
)

// Show prints the most recent snapshots of one oracle.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Oracle == "" {
		return errors.New("--oracle is required")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return writeSnapshotTable(ctx, os.Stdout, store, opts)
}

func writeSnapshotTable(ctx context.Context, out io.Writer, store snapshotReader, opts ShowOptions) error {
	oracle, err := store.GetOracle(ctx, opts.Oracle)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("oracle %s not found", opts.Oracle)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", sanitizeInline(oracle.Description), oracle.Address)
	fmt.Fprintf(out, "network %s, cap %d bps/year, snapshot ratio %s at %s, active %t\n\n",
		oracle.Network, oracle.MaxYearlyGrowthBps, oracle.SnapshotRatio.String(),
		time.Unix(oracle.SnapshotTimestamp, 0).UTC().Format(time.RFC3339), oracle.IsActive)

	snapshots, err := store.ListRecentSnapshots(ctx, oracle.Address, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tBlock\tRatio\tMax Ratio\tUtilization%\tGrowth%\tPrice\tCapped")

	for _, s := range snapshots {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.Timestamp.UTC().Format(time.RFC3339),
			s.BlockNumber,
			s.Ratio.String(),
			s.Metadata.MaxRatio.String(),
			formatDecimal(s.Metadata.UtilizationPercent, 2),
			formatDecimal(s.CurrentGrowthRate, 2),
			s.Price.String(),
			s.IsCapped,
		)
	}

	return writer.Flush()
}

type snapshotReader interface {
	GetOracle(ctx context.Context, address string) (storage.Oracle, error)
	ListRecentSnapshots(ctx context.Context, oracleAddress string, limit int) ([]storage.Snapshot, error)
}

// Alerts prints the most recent alerts.
func (a *App) Alerts(ctx context.Context, limit int) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tOracle\tType\tSeverity\tStatus\tMessage\tDetails\tError")
	for _, alert := range alerts {
		details := ""
		if payload, err := alerting.DecodePayload(alert.Data); err == nil && payload != nil {
			parts := make([]string, 0, 4)
			for _, f := range payload.Fields() {
				parts = append(parts, f.Name+"="+f.Value)
			}
			details = strings.Join(parts, " ")
		}
		errMsg := ""
		if alert.Error != nil {
			errMsg = sanitizeInline(*alert.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.Timestamp.UTC().Format(time.RFC3339),
			alert.OracleAddress,
			alert.Type,
			alert.Severity,
			alert.Status,
			sanitizeInline(alert.Message),
			sanitizeInline(details),
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
