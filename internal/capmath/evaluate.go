package capmath

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// State is the on-chain view of an adapter at one block.
type State struct {
	SnapshotRatio      *big.Int
	SnapshotTimestamp  int64
	MaxYearlyGrowthBps int64
	CurrentRatio       *big.Int
	CurrentTimestamp   int64
}

// Result holds the values derived from a State.
type Result struct {
	Elapsed            int64
	MaxRatio           *big.Int
	IsCapped           bool
	GrowthRatePercent  decimal.Decimal
	UtilizationPercent decimal.Decimal
}

// Evaluate applies the cap formulas to s. A snapshot timestamp in the future
// counts as zero elapsed time.
func Evaluate(s State) Result {
	elapsed := s.CurrentTimestamp - s.SnapshotTimestamp
	if elapsed < 0 {
		elapsed = 0
	}

	maxRatio := MaxRatio(s.SnapshotRatio, s.MaxYearlyGrowthBps, elapsed)
	return Result{
		Elapsed:            elapsed,
		MaxRatio:           maxRatio,
		IsCapped:           IsCapped(s.CurrentRatio, maxRatio),
		GrowthRatePercent:  AnnualizedGrowthRate(s.SnapshotRatio, s.CurrentRatio, elapsed),
		UtilizationPercent: UtilizationPercent(s.SnapshotRatio, s.CurrentRatio, maxRatio),
	}
}
