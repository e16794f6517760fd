// Package chain provides read-only access to EVM networks and typed
// bindings for the contracts capowatch inspects.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownChain is returned for a chain id that has no configured network.
var ErrUnknownChain = errors.New("chain: unknown chain id")

// Block identifies the head a set of reads was pinned to.
type Block struct {
	Number    uint64
	Timestamp int64
}

// Reader issues read-only calls against a network. A nil blockNumber reads
// the latest state.
type Reader interface {
	LatestBlock(ctx context.Context, chainID uint64) (Block, error)
	Call(ctx context.Context, chainID uint64, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error)
}
