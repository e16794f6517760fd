package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// PriceFeed is a feed referenced by a market, with the asset it prices.
type PriceFeed struct {
	Feed  common.Address
	Asset common.Address
}

// Comet binds a Compound III market.
type Comet struct {
	c contract
}

// NewComet binds the market deployed at address.
func NewComet(reader Reader, chainID uint64, address common.Address) *Comet {
	return &Comet{c: contract{reader: reader, chainID: chainID, address: address, abi: CometABI}}
}

// PriceFeeds returns the base token feed followed by every collateral feed.
func (m *Comet) PriceFeeds(ctx context.Context) ([]PriceFeed, error) {
	baseFeed, err := m.c.addr(ctx, "baseTokenPriceFeed")
	if err != nil {
		return nil, err
	}
	baseToken, err := m.c.addr(ctx, "baseToken")
	if err != nil {
		return nil, err
	}

	out, err := m.c.call(ctx, nil, "numAssets")
	if err != nil {
		return nil, err
	}
	n, err := asUint8(out, 0, "numAssets")
	if err != nil {
		return nil, err
	}

	feeds := make([]PriceFeed, 0, int(n)+1)
	feeds = append(feeds, PriceFeed{Feed: baseFeed, Asset: baseToken})
	for i := uint8(0); i < n; i++ {
		out, err := m.c.call(ctx, nil, "getAssetInfo", i)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		asset, err := asAddress(out, 1, "getAssetInfo")
		if err != nil {
			return nil, err
		}
		feed, err := asAddress(out, 2, "getAssetInfo")
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, PriceFeed{Feed: feed, Asset: asset})
	}
	return feeds, nil
}
