package capmath

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func mulExp(v, n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), exp10(n))
}

func TestMaxRatioOneYearAtFivePercent(t *testing.T) {
	snapshot := exp10(18)
	got := MaxRatio(snapshot, 500, SecondsPerYear)

	want := mulExp(105, 16)
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)

	// truncation of the per-second growth loses at most elapsed/Scale units
	// plus one per division step
	tolerance := big.NewInt(10_000)
	assert.True(t, diff.Cmp(tolerance) <= 0, "max ratio %s too far from %s", got, want)
	assert.True(t, got.Cmp(want) <= 0, "integer truncation must never round up")
}

func TestMaxRatioWithoutElapsedIsSnapshot(t *testing.T) {
	snapshot := mulExp(12345, 14)
	assert.Equal(t, 0, MaxRatio(snapshot, 900, 0).Cmp(snapshot))
	assert.Equal(t, 0, MaxRatio(snapshot, 900, -10).Cmp(snapshot))
	assert.Equal(t, 0, MaxRatio(snapshot, 0, SecondsPerYear).Cmp(snapshot))
}

func TestIsCapped(t *testing.T) {
	maxRatio := big.NewInt(100)
	assert.True(t, IsCapped(big.NewInt(100), maxRatio))
	assert.True(t, IsCapped(big.NewInt(101), maxRatio))
	assert.False(t, IsCapped(big.NewInt(99), maxRatio))
	assert.False(t, IsCapped(nil, maxRatio))
}

func TestAnnualizedGrowthRateZeroGuards(t *testing.T) {
	r := mulExp(3, 18)
	assert.True(t, AnnualizedGrowthRate(r, r, 86_400).IsZero())
	assert.True(t, AnnualizedGrowthRate(r, mulExp(4, 18), 0).IsZero())
	assert.True(t, AnnualizedGrowthRate(big.NewInt(0), mulExp(4, 18), 86_400).IsZero())
}

func TestAnnualizedGrowthRate(t *testing.T) {
	snapshot := exp10(18)
	current := mulExp(101, 16)

	// 1% over half a year annualises to 2%
	got := AnnualizedGrowthRate(snapshot, current, SecondsPerYear/2)
	assert.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)

	// a decrease yields a negative rate
	got = AnnualizedGrowthRate(snapshot, mulExp(99, 16), SecondsPerYear)
	assert.True(t, got.Equal(decimal.NewFromInt(-1)), "got %s", got)
}

func TestUtilizationPercent(t *testing.T) {
	snapshot := big.NewInt(1000)
	maxRatio := big.NewInt(1100)

	cases := []struct {
		name    string
		current int64
		want    string
	}{
		{"untouched", 1000, "0"},
		{"below snapshot", 900, "0"},
		{"half", 1050, "50"},
		{"nearly full", 1095, "95"},
		{"at cap", 1100, "100"},
		{"above cap", 1150, "150"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := UtilizationPercent(snapshot, big.NewInt(tc.current), maxRatio)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestUtilizationWithoutBudget(t *testing.T) {
	snapshot := big.NewInt(1000)
	assert.True(t, UtilizationPercent(snapshot, big.NewInt(1001), snapshot).Equal(decimal.NewFromInt(100)))
	assert.True(t, UtilizationPercent(snapshot, snapshot, snapshot).IsZero())
}

func TestPriceChangePercent(t *testing.T) {
	old := mulExp(1000, 8)

	got, ok := PriceChangePercent(old, mulExp(1150, 8))
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(15)), "got %s", got)

	got, ok = PriceChangePercent(old, mulExp(1090, 8))
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(9)), "got %s", got)

	_, ok = PriceChangePercent(big.NewInt(0), mulExp(1090, 8))
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	snapshot := exp10(18)
	res := Evaluate(State{
		SnapshotRatio:      snapshot,
		SnapshotTimestamp:  1_700_000_000,
		MaxYearlyGrowthBps: 1000,
		CurrentRatio:       mulExp(2, 18),
		CurrentTimestamp:   1_700_000_000 + SecondsPerYear,
	})

	assert.Equal(t, SecondsPerYear, res.Elapsed)
	assert.True(t, res.IsCapped)
	assert.True(t, res.UtilizationPercent.GreaterThan(decimal.NewFromInt(100)))

	future := Evaluate(State{
		SnapshotRatio:      snapshot,
		SnapshotTimestamp:  2_000,
		MaxYearlyGrowthBps: 1000,
		CurrentRatio:       snapshot,
		CurrentTimestamp:   1_000,
	})
	assert.Equal(t, int64(0), future.Elapsed)
	assert.True(t, future.GrowthRatePercent.IsZero())
	assert.True(t, future.IsCapped, "ratio equal to snapshot with no elapsed time sits on the cap")
}
