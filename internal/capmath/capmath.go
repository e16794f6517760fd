// Package capmath re-derives the bounding math of capped growth-rate price
// adapters. Every ratio is an integer in the adapter's smallest unit and all
// intermediate steps use big integers; only the final percentages are
// converted to decimals.
package capmath

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// SecondsPerYear is the 365-day year used by the on-chain adapters.
	SecondsPerYear int64 = 365 * 24 * 60 * 60
	// BpsDenominator converts basis points to a fraction (1% = 100).
	BpsDenominator int64 = 10_000
)

var (
	// Scale is the intermediate precision used for the per-second growth.
	Scale = big.NewInt(10_000_000_000)

	bigSecondsPerYear = big.NewInt(SecondsPerYear)
	bigBps            = big.NewInt(BpsDenominator)
	hundred           = decimal.NewFromInt(100)
)

// MaxRatio returns the upper bound the adapter allows after elapsed seconds:
//
//	perSecond = snapshot * bps * Scale / 10_000 / SecondsPerYear
//	max       = snapshot + perSecond * elapsed / Scale
func MaxRatio(snapshotRatio *big.Int, maxYearlyGrowthBps int64, elapsed int64) *big.Int {
	if snapshotRatio == nil {
		return new(big.Int)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	perSecond := new(big.Int).Mul(snapshotRatio, big.NewInt(maxYearlyGrowthBps))
	perSecond.Mul(perSecond, Scale)
	perSecond.Quo(perSecond, bigBps)
	perSecond.Quo(perSecond, bigSecondsPerYear)

	growth := new(big.Int).Mul(perSecond, big.NewInt(elapsed))
	growth.Quo(growth, Scale)

	return growth.Add(growth, snapshotRatio)
}

// IsCapped reports whether current has reached the bound.
func IsCapped(current, maxRatio *big.Int) bool {
	if current == nil || maxRatio == nil {
		return false
	}
	return current.Cmp(maxRatio) >= 0
}

// AnnualizedGrowthRate extrapolates the growth since the snapshot to a
// yearly percentage. The growth is first truncated to basis points, then
// annualised, then divided by 100.
func AnnualizedGrowthRate(snapshotRatio, current *big.Int, elapsed int64) decimal.Decimal {
	if elapsed <= 0 || snapshotRatio == nil || current == nil || snapshotRatio.Sign() == 0 {
		return decimal.Zero
	}

	bps := new(big.Int).Sub(current, snapshotRatio)
	bps.Mul(bps, bigBps)
	bps.Quo(bps, snapshotRatio)
	bps.Mul(bps, bigSecondsPerYear)
	bps.Quo(bps, big.NewInt(elapsed))

	return decimal.NewFromBigInt(bps, 0).Div(hundred)
}

// UtilizationPercent is the share of the growth budget between the snapshot
// and the cap already consumed: (current - snapshot) / (max - snapshot).
// The result is floored at 0 and may exceed 100 when the raw ratio is above
// the cap.
func UtilizationPercent(snapshotRatio, current, maxRatio *big.Int) decimal.Decimal {
	if snapshotRatio == nil || current == nil || maxRatio == nil {
		return decimal.Zero
	}

	used := new(big.Int).Sub(current, snapshotRatio)
	if used.Sign() <= 0 {
		return decimal.Zero
	}

	budget := new(big.Int).Sub(maxRatio, snapshotRatio)
	if budget.Sign() <= 0 {
		return hundred
	}

	bps := used.Mul(used, bigBps)
	bps.Quo(bps, budget)
	return decimal.NewFromBigInt(bps, 0).Div(hundred)
}

// PriceChangeBps returns (current - old) * 10_000 / old. ok is false when
// old is zero.
func PriceChangeBps(old, current *big.Int) (bps *big.Int, ok bool) {
	if old == nil || current == nil || old.Sign() == 0 {
		return nil, false
	}
	bps = new(big.Int).Sub(current, old)
	bps.Mul(bps, bigBps)
	bps.Quo(bps, old)
	return bps, true
}

// PriceChangePercent is PriceChangeBps expressed as a percentage.
func PriceChangePercent(old, current *big.Int) (decimal.Decimal, bool) {
	bps, ok := PriceChangeBps(old, current)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(bps, 0).Div(hundred), true
}
