package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AdapterMetadata is the mostly static configuration of an adapter.
type AdapterMetadata struct {
	Description          string
	RatioProvider        common.Address
	BaseAggregator       common.Address
	SnapshotRatio        *big.Int
	SnapshotTimestamp    int64
	MinimumSnapshotDelay int64
	Decimals             uint8
	Manager              common.Address
	MaxYearlyGrowthBps   int64
}

// AdapterState is the adapter's state at one block.
type AdapterState struct {
	Block              Block
	Price              *big.Int
	Ratio              *big.Int
	IsCapped           bool
	SnapshotRatio      *big.Int
	SnapshotTimestamp  int64
	MaxYearlyGrowthBps int64
}

// Adapter binds a capped growth-rate price adapter.
type Adapter struct {
	c contract
}

// NewAdapter binds the adapter deployed at address.
func NewAdapter(reader Reader, chainID uint64, address common.Address) *Adapter {
	return &Adapter{c: contract{reader: reader, chainID: chainID, address: address, abi: AdapterABI}}
}

// MaxRatioGrowthPerSecond exists only on capped adapters, so a failing call
// means the contract is something else.
func (a *Adapter) MaxRatioGrowthPerSecond(ctx context.Context) (*big.Int, error) {
	return a.c.bigInt(ctx, nil, "getMaxRatioGrowthPerSecond")
}

// Metadata reads the adapter configuration one call at a time.
func (a *Adapter) Metadata(ctx context.Context) (AdapterMetadata, error) {
	var (
		meta AdapterMetadata
		err  error
	)

	out, err := a.c.call(ctx, nil, "description")
	if err != nil {
		return meta, err
	}
	desc, ok := out[0].(string)
	if !ok {
		return meta, fmt.Errorf("%w: description returned %T", ErrUnexpectedOutput, out[0])
	}
	meta.Description = desc

	if meta.RatioProvider, err = a.c.addr(ctx, "RATIO_PROVIDER"); err != nil {
		return meta, err
	}
	if meta.BaseAggregator, err = a.c.addr(ctx, "BASE_TO_USD_AGGREGATOR"); err != nil {
		return meta, err
	}
	if meta.SnapshotRatio, err = a.c.bigInt(ctx, nil, "getSnapshotRatio"); err != nil {
		return meta, err
	}
	if meta.SnapshotTimestamp, err = a.int64Of(ctx, nil, "getSnapshotTimestamp"); err != nil {
		return meta, err
	}
	if meta.MinimumSnapshotDelay, err = a.int64Of(ctx, nil, "MINIMUM_SNAPSHOT_DELAY"); err != nil {
		return meta, err
	}

	out, err = a.c.call(ctx, nil, "decimals")
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(out, 0, "decimals"); err != nil {
		return meta, err
	}

	if meta.Manager, err = a.c.addr(ctx, "ACL_MANAGER"); err != nil {
		return meta, err
	}
	if meta.MaxYearlyGrowthBps, err = a.int64Of(ctx, nil, "getMaxYearlyGrowthRatePercent"); err != nil {
		return meta, err
	}
	return meta, nil
}

// State reads price, ratio and cap parameters pinned to block.
func (a *Adapter) State(ctx context.Context, block Block) (AdapterState, error) {
	state := AdapterState{Block: block}
	at := new(big.Int).SetUint64(block.Number)

	out, err := a.c.call(ctx, at, "latestRoundData")
	if err != nil {
		return state, err
	}
	if state.Price, err = asBigInt(out, 1, "latestRoundData"); err != nil {
		return state, err
	}

	if state.Ratio, err = a.c.bigInt(ctx, at, "getRatio"); err != nil {
		return state, err
	}

	out, err = a.c.call(ctx, at, "isCapped")
	if err != nil {
		return state, err
	}
	capped, ok := out[0].(bool)
	if !ok {
		return state, fmt.Errorf("%w: isCapped returned %T", ErrUnexpectedOutput, out[0])
	}
	state.IsCapped = capped

	if state.SnapshotRatio, err = a.c.bigInt(ctx, at, "getSnapshotRatio"); err != nil {
		return state, err
	}
	if state.SnapshotTimestamp, err = a.int64Of(ctx, at, "getSnapshotTimestamp"); err != nil {
		return state, err
	}
	if state.MaxYearlyGrowthBps, err = a.int64Of(ctx, at, "getMaxYearlyGrowthRatePercent"); err != nil {
		return state, err
	}
	return state, nil
}

func (a *Adapter) int64Of(ctx context.Context, block *big.Int, method string) (int64, error) {
	v, err := a.c.bigInt(ctx, block, method)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: %s value %s overflows int64", ErrUnexpectedOutput, method, v)
	}
	return v.Int64(), nil
}
