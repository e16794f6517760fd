// Package chaintest provides an in-memory chain.Reader for tests and dry runs.
package chaintest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"capowatch/internal/chain"
)

// ErrReverted is returned for calls that have no registered response.
var ErrReverted = errors.New("execution reverted")

type callKey struct {
	chainID uint64
	to      common.Address
	data    string
}

type response struct {
	out []byte
	err error
}

// Fake answers contract calls from registered responses keyed by method
// selector, or by full calldata when arguments matter.
type Fake struct {
	mu        sync.Mutex
	blocks    map[uint64]chain.Block
	blockErrs map[uint64]error
	responses map[callKey]response
	calls     map[common.Address]int
	pinned    map[common.Address]*big.Int
}

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{
		blocks:    make(map[uint64]chain.Block),
		blockErrs: make(map[uint64]error),
		responses: make(map[callKey]response),
		calls:     make(map[common.Address]int),
		pinned:    make(map[common.Address]*big.Int),
	}
}

// SetBlock sets the head returned for a chain.
func (f *Fake) SetBlock(chainID uint64, block chain.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[chainID] = block
	delete(f.blockErrs, chainID)
}

// FailBlock makes LatestBlock fail for a chain.
func (f *Fake) FailBlock(chainID uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockErrs[chainID] = err
}

// Respond registers the outputs of an argument-less method.
func (f *Fake) Respond(chainID uint64, to common.Address, method string, outputs ...interface{}) {
	m := lookup(method)
	packed, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack outputs of %s: %v", method, err))
	}
	f.set(callKey{chainID, to, hex.EncodeToString(m.ID)}, response{out: packed})
}

// RespondWithArgs registers the outputs of a method for specific arguments.
func (f *Fake) RespondWithArgs(chainID uint64, to common.Address, method string, args []interface{}, outputs ...interface{}) {
	m := lookup(method)
	input, err := m.Inputs.Pack(args...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack inputs of %s: %v", method, err))
	}
	packed, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack outputs of %s: %v", method, err))
	}
	data := append(append([]byte{}, m.ID...), input...)
	f.set(callKey{chainID, to, hex.EncodeToString(data)}, response{out: packed})
}

// Fail makes every call of method on to return err.
func (f *Fake) Fail(chainID uint64, to common.Address, method string, err error) {
	m := lookup(method)
	f.set(callKey{chainID, to, hex.EncodeToString(m.ID)}, response{err: err})
}

// Calls reports how many calls reached to.
func (f *Fake) Calls(to common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[to]
}

// LastBlock reports the block number of the most recent call to to, nil for
// latest.
func (f *Fake) LastBlock(to common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinned[to]
}

// LatestBlock implements chain.Reader.
func (f *Fake) LatestBlock(_ context.Context, chainID uint64) (chain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.blockErrs[chainID]; ok {
		return chain.Block{}, err
	}
	block, ok := f.blocks[chainID]
	if !ok {
		return chain.Block{}, fmt.Errorf("%w: %d", chain.ErrUnknownChain, chainID)
	}
	return block, nil
}

// Call implements chain.Reader.
func (f *Fake) Call(_ context.Context, chainID uint64, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[to]++
	f.pinned[to] = blockNumber

	if resp, ok := f.responses[callKey{chainID, to, hex.EncodeToString(data)}]; ok {
		return resp.out, resp.err
	}
	if len(data) >= 4 {
		if resp, ok := f.responses[callKey{chainID, to, hex.EncodeToString(data[:4])}]; ok {
			return resp.out, resp.err
		}
	}
	return nil, ErrReverted
}

func (f *Fake) set(key callKey, resp response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = resp
}

func lookup(method string) abi.Method {
	if m, ok := chain.AdapterABI.Methods[method]; ok {
		return m
	}
	if m, ok := chain.CometABI.Methods[method]; ok {
		return m
	}
	panic("chaintest: unknown method " + method)
}

var _ chain.Reader = (*Fake)(nil)
