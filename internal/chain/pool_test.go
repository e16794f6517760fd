package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcHandler func(req rpcRequest) (interface{}, *rpcError)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCServer(t *testing.T, handle rpcHandler) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testPool(url string, failures uint32) *Pool {
	return NewPool(PoolOptions{
		Networks:         []Network{{Name: "testnet", ChainID: 31337, RPCURL: url}},
		RequestTimeout:   2 * time.Second,
		BreakerFailures:  failures,
		BreakerOpenDelay: time.Minute,
	}, zerolog.Nop())
}

func TestPoolLatestBlockAndCall(t *testing.T) {
	var seenBlock string
	srv, _ := newRPCServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		switch req.Method {
		case "eth_getBlockByNumber":
			return &types.Header{Number: big.NewInt(123), Time: 1_700_000_000, Difficulty: big.NewInt(0)}, nil
		case "eth_call":
			if len(req.Params) > 1 {
				_ = json.Unmarshal(req.Params[1], &seenBlock)
			}
			out, _ := AdapterABI.Methods["getRatio"].Outputs.Pack(big.NewInt(42))
			return hexutil.Encode(out), nil
		}
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	})

	pool := testPool(srv.URL, 5)
	defer pool.Close()

	block, err := pool.LatestBlock(context.Background(), 31337)
	if err != nil {
		t.Fatalf("latest block: %v", err)
	}
	if block.Number != 123 || block.Timestamp != 1_700_000_000 {
		t.Fatalf("unexpected block %+v", block)
	}

	adapter := NewAdapter(pool, 31337, common.HexToAddress("0x01"))
	out, err := adapter.c.bigInt(context.Background(), new(big.Int).SetUint64(block.Number), "getRatio")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.Int64() != 42 {
		t.Fatalf("expected 42, got %s", out)
	}
	if seenBlock != "0x7b" {
		t.Fatalf("call should be pinned to block 0x7b, got %q", seenBlock)
	}
}

func TestPoolUnknownChainAndMissingURL(t *testing.T) {
	pool := NewPool(PoolOptions{Networks: []Network{{Name: "empty", ChainID: 5}}}, zerolog.Nop())

	if _, err := pool.LatestBlock(context.Background(), 1); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got %v", err)
	}
	if _, err := pool.Call(context.Background(), 5, common.Address{}, nil, nil); err == nil {
		t.Fatal("network without rpc url should fail")
	}
}

func TestPoolRevertDoesNotTripBreaker(t *testing.T) {
	srv, hits := newRPCServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		return nil, &rpcError{Code: 3, Message: "execution reverted"}
	})
	pool := testPool(srv.URL, 2)
	defer pool.Close()

	for i := 0; i < 4; i++ {
		_, err := pool.Call(context.Background(), 31337, common.Address{}, []byte{1, 2, 3, 4}, nil)
		if !IsRevert(err) {
			t.Fatalf("call %d: expected revert, got %v", i, err)
		}
	}
	if got := atomic.LoadInt32(hits); got != 4 {
		t.Fatalf("reverts must reach the node every time, got %d hits", got)
	}
}

func TestPoolBreakerOpensOnFailures(t *testing.T) {
	srv, hits := newRPCServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "header not found"}
	})
	pool := testPool(srv.URL, 2)
	defer pool.Close()

	for i := 0; i < 5; i++ {
		_, _ = pool.Call(context.Background(), 31337, common.Address{}, []byte{1, 2, 3, 4}, nil)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("breaker should stop traffic after 2 failures, got %d hits", got)
	}
}

func TestIsRevert(t *testing.T) {
	if IsRevert(nil) {
		t.Fatal("nil is not a revert")
	}
	if !IsRevert(errors.New("execution reverted: paused")) {
		t.Fatal("revert text should be recognised")
	}
	if IsRevert(errors.New("connection refused")) {
		t.Fatal("transport errors are not reverts")
	}
}
