package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	adapterABIJSON = `[
  {"inputs":[],"name":"getMaxRatioGrowthPerSecond","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getRatio","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"isCapped","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getSnapshotRatio","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getSnapshotTimestamp","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getMaxYearlyGrowthRatePercent","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"MINIMUM_SNAPSHOT_DELAY","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"RATIO_PROVIDER","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"BASE_TO_USD_AGGREGATOR","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"ACL_MANAGER","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"description","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"name":"roundId","type":"uint80"},
    {"name":"answer","type":"int256"},
    {"name":"startedAt","type":"uint256"},
    {"name":"updatedAt","type":"uint256"},
    {"name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

	// getAssetInfo returns a fully static struct, whose encoding equals the
	// flat list of its members.
	cometABIJSON = `[
  {"inputs":[],"name":"baseToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"baseTokenPriceFeed","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"numAssets","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"i","type":"uint8"}],"name":"getAssetInfo","outputs":[
    {"name":"offset","type":"uint8"},
    {"name":"asset","type":"address"},
    {"name":"priceFeed","type":"address"},
    {"name":"scale","type":"uint64"},
    {"name":"borrowCollateralFactor","type":"uint64"},
    {"name":"liquidateCollateralFactor","type":"uint64"},
    {"name":"liquidationFactor","type":"uint64"},
    {"name":"supplyCap","type":"uint128"}
  ],"stateMutability":"view","type":"function"}
]`
)

var (
	// AdapterABI is the capped growth-rate adapter interface.
	AdapterABI abi.ABI
	// CometABI is the subset of a Comet market used to locate price feeds.
	CometABI abi.ABI
)

func init() {
	AdapterABI = mustParseABI("adapter", adapterABIJSON)
	CometABI = mustParseABI("comet", cometABIJSON)
}

func mustParseABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// ErrUnexpectedOutput is returned when a call decodes to an unexpected shape.
var ErrUnexpectedOutput = errors.New("chain: unexpected call output")

type contract struct {
	reader  Reader
	chainID uint64
	address common.Address
	abi     abi.ABI
}

func (c contract) call(ctx context.Context, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	payload, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := c.reader.Call(ctx, c.chainID, c.address, payload, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}
	outputs, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s on %s: %w", method, c.address.Hex(), err)
	}
	return outputs, nil
}

func (c contract) bigInt(ctx context.Context, block *big.Int, method string) (*big.Int, error) {
	out, err := c.call(ctx, block, method)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, 0, method)
}

func (c contract) addr(ctx context.Context, method string) (common.Address, error) {
	out, err := c.call(ctx, nil, method)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, 0, method)
}

func asBigInt(out []interface{}, idx int, method string) (*big.Int, error) {
	if len(out) <= idx {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOutput, method)
	}
	v, ok := out[idx].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, out[idx])
	}
	return v, nil
}

func asAddress(out []interface{}, idx int, method string) (common.Address, error) {
	if len(out) <= idx {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnexpectedOutput, method)
	}
	v, ok := out[idx].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, out[idx])
	}
	return v, nil
}

func asUint8(out []interface{}, idx int, method string) (uint8, error) {
	if len(out) <= idx {
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedOutput, method)
	}
	v, ok := out[idx].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, out[idx])
	}
	return v, nil
}
