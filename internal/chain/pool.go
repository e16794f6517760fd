package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"capowatch/internal/metrics"
)

// Network is one configured EVM endpoint.
type Network struct {
	Name    string
	ChainID uint64
	RPCURL  string
}

// PoolOptions tune every network connection of a Pool.
type PoolOptions struct {
	Networks         []Network
	RequestTimeout   time.Duration
	RateLimit        float64
	RateBurst        int
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

type endpoint struct {
	network Network
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	client *ethclient.Client
}

// Pool keeps one lazily dialled client per network. Every call waits on the
// network's rate limiter, passes its circuit breaker and is bounded by the
// request timeout.
type Pool struct {
	opts      PoolOptions
	logger    zerolog.Logger
	endpoints map[uint64]*endpoint
}

// NewPool builds a pool for the given networks.
func NewPool(opts PoolOptions, logger zerolog.Logger) *Pool {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpenDelay <= 0 {
		opts.BreakerOpenDelay = 30 * time.Second
	}

	p := &Pool{
		opts:      opts,
		logger:    logger.With().Str("component", "chain_pool").Logger(),
		endpoints: make(map[uint64]*endpoint, len(opts.Networks)),
	}

	for _, n := range opts.Networks {
		limit := rate.Inf
		if opts.RateLimit > 0 {
			limit = rate.Limit(opts.RateLimit)
		}
		p.endpoints[n.ChainID] = &endpoint{
			network: n,
			limiter: rate.NewLimiter(limit, opts.RateBurst),
			breaker: p.newBreaker(n),
		}
	}
	return p
}

func (p *Pool) newBreaker(n Network) *gobreaker.CircuitBreaker {
	failures := p.opts.BreakerFailures
	logger := p.logger
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    n.Name,
		Timeout: p.opts.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// reverts are answers from a healthy node
		IsSuccessful: func(err error) bool {
			return err == nil || IsRevert(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("network", name).Str("from", from.String()).Str("to", to.String()).Msg("rpc breaker state changed")
		},
	})
}

// LatestBlock resolves the current head of a network.
func (p *Pool) LatestBlock(ctx context.Context, chainID uint64) (Block, error) {
	var block Block
	err := p.do(ctx, chainID, func(ctx context.Context, client *ethclient.Client) error {
		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		block = Block{Number: header.Number.Uint64(), Timestamp: int64(header.Time)}
		return nil
	})
	if err != nil {
		return Block{}, fmt.Errorf("latest block on chain %d: %w", chainID, err)
	}
	return block, nil
}

// Call executes eth_call against to at blockNumber (nil = latest).
func (p *Pool) Call(ctx context.Context, chainID uint64, to common.Address, data []byte, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := p.do(ctx, chainID, func(ctx context.Context, client *ethclient.Client) error {
		res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, blockNumber)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close drops every dialled client.
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
	}
}

func (p *Pool) do(ctx context.Context, chainID uint64, fn func(context.Context, *ethclient.Client) error) error {
	ep, ok := p.endpoints[chainID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	if ep.network.RPCURL == "" {
		return fmt.Errorf("rpc url not configured for network %s", ep.network.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	if err := ep.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	_, err := ep.breaker.Execute(func() (interface{}, error) {
		client, err := ep.getClient(ctx)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, client)
	})
	metrics.RPCCallDuration.WithLabelValues(ep.network.Name).Observe(time.Since(start).Seconds())

	status := "ok"
	switch {
	case err == nil:
	case IsRevert(err):
		status = "revert"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = "breaker_open"
	default:
		status = "error"
	}
	metrics.RPCCallsTotal.WithLabelValues(ep.network.Name, status).Inc()
	return err
}

func (ep *endpoint) getClient(ctx context.Context) (*ethclient.Client, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.client != nil {
		return ep.client, nil
	}

	client, err := ethclient.DialContext(ctx, ep.network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep.network.Name, err)
	}
	ep.client = client
	return client, nil
}

// IsRevert reports whether err is an execution revert rather than a
// transport or node failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

var _ Reader = (*Pool)(nil)
