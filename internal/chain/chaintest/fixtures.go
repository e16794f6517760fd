package chaintest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"capowatch/internal/chain"
)

// AdapterFixture describes a capped adapter served by the fake.
type AdapterFixture struct {
	Description          string
	RatioProvider        common.Address
	BaseAggregator       common.Address
	Manager              common.Address
	Decimals             uint8
	MinimumSnapshotDelay int64
	SnapshotRatio        *big.Int
	SnapshotTimestamp    int64
	MaxYearlyGrowthBps   int64
	Ratio                *big.Int
	Price                *big.Int
	Capped               bool
}

// RespondAdapter registers every adapter method for addr.
func (f *Fake) RespondAdapter(chainID uint64, addr common.Address, a AdapterFixture) {
	snapshot := orZero(a.SnapshotRatio)
	f.Respond(chainID, addr, "getMaxRatioGrowthPerSecond", big.NewInt(1))
	f.Respond(chainID, addr, "description", a.Description)
	f.Respond(chainID, addr, "RATIO_PROVIDER", a.RatioProvider)
	f.Respond(chainID, addr, "BASE_TO_USD_AGGREGATOR", a.BaseAggregator)
	f.Respond(chainID, addr, "ACL_MANAGER", a.Manager)
	f.Respond(chainID, addr, "decimals", a.Decimals)
	f.Respond(chainID, addr, "MINIMUM_SNAPSHOT_DELAY", big.NewInt(a.MinimumSnapshotDelay))
	f.Respond(chainID, addr, "getSnapshotRatio", snapshot)
	f.Respond(chainID, addr, "getSnapshotTimestamp", big.NewInt(a.SnapshotTimestamp))
	f.Respond(chainID, addr, "getMaxYearlyGrowthRatePercent", big.NewInt(a.MaxYearlyGrowthBps))
	f.Respond(chainID, addr, "getRatio", orZero(a.Ratio))
	f.Respond(chainID, addr, "isCapped", a.Capped)
	f.Respond(chainID, addr, "latestRoundData",
		big.NewInt(1), orZero(a.Price), big.NewInt(0), big.NewInt(0), big.NewInt(1))
}

// SetPrice replaces the latestRoundData answer of addr.
func (f *Fake) SetPrice(chainID uint64, addr common.Address, price *big.Int) {
	f.Respond(chainID, addr, "latestRoundData",
		big.NewInt(1), price, big.NewInt(0), big.NewInt(0), big.NewInt(1))
}

// RespondComet registers a market whose first feed is the base token feed.
func (f *Fake) RespondComet(chainID uint64, market common.Address, feeds []chain.PriceFeed) {
	if len(feeds) == 0 {
		panic("chaintest: comet market needs a base feed")
	}
	f.Respond(chainID, market, "baseTokenPriceFeed", feeds[0].Feed)
	f.Respond(chainID, market, "baseToken", feeds[0].Asset)
	f.Respond(chainID, market, "numAssets", uint8(len(feeds)-1))
	for i, feed := range feeds[1:] {
		f.RespondWithArgs(chainID, market, "getAssetInfo", []interface{}{uint8(i)},
			uint8(i), feed.Asset, feed.Feed, uint64(1e18), uint64(0), uint64(0), uint64(0), big.NewInt(0))
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
