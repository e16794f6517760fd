package app

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"capowatch/internal/storage"
)

func exportSnapshots(utilization ...int64) []storage.Snapshot {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	snap := decimal.RequireFromString("1000000000000000000")
	out := make([]storage.Snapshot, len(utilization))
	for i, u := range utilization {
		ratio := snap.Add(decimal.NewFromInt(u * 1_000_000_000_000_000 / 2))
		out[i] = storage.Snapshot{
			Ratio:         ratio,
			SnapshotRatio: snap,
			BlockNumber:   uint64(100 + i),
			IsCapped:      u >= 100,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Metadata: storage.SnapshotMetadata{
				MaxRatio:           decimal.RequireFromString("1050000000000000000"),
				UtilizationPercent: decimal.NewFromInt(u),
			},
		}
	}
	return out
}

func TestPeakSnapshotsKeepsUtilizationPeaks(t *testing.T) {
	snaps := exportSnapshots(10, 11, 12, 13, 14, 15, 16, 95, 17, 18)

	got := peakSnapshots(snaps, 5)
	if len(got) != 5 {
		t.Fatalf("expected 5 points, got %d", len(got))
	}

	found := false
	for i, s := range got {
		if i > 0 && !s.Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("points must stay in time order: %v", got)
		}
		if s.Metadata.UtilizationPercent.Equal(decimal.NewFromInt(95)) {
			found = true
		}
	}
	if !found {
		t.Fatal("利用率峰值在降采样后丢失")
	}

	if all := peakSnapshots(snaps, 0); len(all) != len(snaps) {
		t.Fatalf("max 0 should keep every snapshot, got %d", len(all))
	}
}

func TestWriteSnapshotsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSnapshotsCSV(&buf, exportSnapshots(40, 100)); err != nil {
		t.Fatalf("csv: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	row := records[2]
	if row[0] != "2024-05-01T00:01:00Z" || row[1] != "101" || row[4] != "1050000000000000000" || row[5] != "100" || row[8] != "true" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestGrowthSinceSnapshot(t *testing.T) {
	snap := decimal.RequireFromString("1000000000000000000")
	if got := growthSinceSnapshot(decimal.RequireFromString("1050000000000000000"), snap); got != 5 {
		t.Fatalf("expected 5%% growth, got %v", got)
	}
	if got := growthSinceSnapshot(snap, decimal.Zero); got != 0 {
		t.Fatalf("zero snapshot should plot 0, got %v", got)
	}
}

func TestRenderGrowthChartWritesPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := renderGrowthChart(&buf, "Capped wstETH / USD", exportSnapshots(20, 60, 100)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}
