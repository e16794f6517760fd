package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"capowatch/internal/storage"
)

// Export renders an oracle's snapshot history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Oracle == "" {
		return errors.New("--oracle is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.CollectInterval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	oracle, err := store.GetOracle(ctx, opts.Oracle)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("oracle %s not found", opts.Oracle)
	}
	if err != nil {
		return err
	}

	snapshots, err := store.ListSnapshotsBetween(ctx, oracle.Address, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Str("oracle", oracle.Address).Msg("no snapshots found for export window")
		return nil
	}

	points := peakSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Str("oracle", oracle.Address).Int("total", len(snapshots)).Int("exported", len(points)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error { return writeSnapshotsCSV(w, points) }); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s (%s)", sanitizeInline(oracle.Description), oracle.Address)
		if err := writeFile(opts.PNGPath, func(w io.Writer) error { return renderGrowthChart(w, title, points) }); err != nil {
			return err
		}
	}

	return nil
}

// peakSnapshots reduces snapshots to at most max points. Each point is the
// snapshot with the highest cap utilization in its slice of the window, so
// approaches to the cap survive the reduction.
func peakSnapshots(snapshots []storage.Snapshot, max int) []storage.Snapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}

	out := make([]storage.Snapshot, 0, max)
	for b := 0; b < max; b++ {
		lo := b * len(snapshots) / max
		hi := (b + 1) * len(snapshots) / max
		peak := lo
		for i := lo + 1; i < hi; i++ {
			if snapshots[i].Metadata.UtilizationPercent.GreaterThan(snapshots[peak].Metadata.UtilizationPercent) {
				peak = i
			}
		}
		out = append(out, snapshots[peak])
	}
	return out
}

func writeSnapshotsCSV(w io.Writer, snapshots []storage.Snapshot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"ts", "block_number", "ratio", "snapshot_ratio", "max_ratio", "utilization_pct", "growth_rate_pct", "price", "is_capped"}); err != nil {
		return err
	}

	for _, s := range snapshots {
		if err := writer.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatUint(s.BlockNumber, 10),
			s.Ratio.String(),
			s.SnapshotRatio.String(),
			s.Metadata.MaxRatio.String(),
			s.Metadata.UtilizationPercent.String(),
			s.CurrentGrowthRate.String(),
			s.Price.String(),
			strconv.FormatBool(s.IsCapped),
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// growthSinceSnapshot expresses v as percent growth over the snapshot ratio,
// which puts the ratio and its cap on one scale regardless of decimals.
func growthSinceSnapshot(v, snapshot decimal.Decimal) float64 {
	if snapshot.IsZero() {
		return 0
	}
	return v.Sub(snapshot).Div(snapshot).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// renderGrowthChart plots ratio growth against the cap, with utilization on
// the secondary axis and dots on capped snapshots.
func renderGrowthChart(w io.Writer, title string, snapshots []storage.Snapshot) error {
	var (
		x           = make([]time.Time, len(snapshots))
		ratio       = make([]float64, len(snapshots))
		ceiling     = make([]float64, len(snapshots))
		utilization = make([]float64, len(snapshots))
		cappedX     []time.Time
		cappedY     []float64
	)
	for i, s := range snapshots {
		x[i] = s.Timestamp
		ratio[i] = growthSinceSnapshot(s.Ratio, s.SnapshotRatio)
		ceiling[i] = growthSinceSnapshot(s.Metadata.MaxRatio, s.SnapshotRatio)
		utilization[i] = s.Metadata.UtilizationPercent.InexactFloat64()
		if s.IsCapped {
			cappedX = append(cappedX, s.Timestamp)
			cappedY = append(cappedY, ratio[i])
		}
	}

	pct := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f%%")
	}
	series := []chart.Series{
		chart.TimeSeries{Name: "Ratio growth", XValues: x, YValues: ratio},
		chart.TimeSeries{
			Name:    "Cap",
			XValues: x,
			YValues: ceiling,
			Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{5, 3}},
		},
		chart.TimeSeries{
			Name:    "Utilization",
			XValues: x,
			YValues: utilization,
			YAxis:   chart.YAxisSecondary,
			Style:   chart.Style{StrokeColor: chart.ColorAlternateGray},
		},
	}
	if len(cappedX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Capped",
			XValues: cappedX,
			YValues: cappedY,
			Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: chart.ColorRed},
		})
	}

	graph := chart.Chart{
		Title:          title,
		Width:          1280,
		Height:         720,
		XAxis:          chart.XAxis{ValueFormatter: chart.TimeValueFormatter},
		YAxis:          chart.YAxis{Name: "Growth since snapshot", ValueFormatter: pct},
		YAxisSecondary: chart.YAxis{Name: "Utilization", ValueFormatter: pct},
		Series:         series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
