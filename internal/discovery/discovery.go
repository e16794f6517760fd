// Package discovery finds capped growth-rate adapters among the price feeds
// referenced by the configured markets and records them in the oracle
// registry.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"capowatch/internal/chain"
	"capowatch/internal/metrics"
	"capowatch/internal/source"
	"capowatch/internal/storage"
)

// Options tune a discovery sweep.
type Options struct {
	Algorithms       []string
	ProbeConcurrency int
}

// Service runs discovery sweeps.
type Service struct {
	reader  chain.Reader
	sources source.Registry
	store   storage.OracleStore
	opts    Options
	logger  zerolog.Logger
}

type candidate struct {
	address common.Address
	chainID uint64
	network string
	asset   common.Address
}

// New constructs a discovery service.
func New(reader chain.Reader, sources source.Registry, store storage.OracleStore, opts Options, logger zerolog.Logger) *Service {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []string{"comet"}
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = 1
	}
	return &Service{
		reader:  reader,
		sources: sources,
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "discovery").Logger(),
	}
}

// SyncFromSources resolves every supported market to its price feeds,
// probes each feed once and upserts the ones that are capped adapters.
// Failing markets and feeds are logged and skipped.
func (s *Service) SyncFromSources(ctx context.Context) ([]storage.Oracle, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	candidates := s.collectCandidates(ctx, sources)
	s.logger.Info().Int("sources", len(sources)).Int("candidates", len(candidates)).Msg("discovery sweep started")

	var (
		mu         sync.Mutex
		discovered []storage.Oracle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ProbeConcurrency)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			oracle, err := s.Probe(gctx, c.address, c.chainID, c.network)
			if err != nil {
				s.logger.Warn().Err(err).Str("address", c.address.Hex()).Str("network", c.network).Msg("failed to probe candidate")
				return nil
			}
			if oracle == nil {
				return nil
			}
			if c.asset != (common.Address{}) {
				oracle.AssetAddress = storage.NormalizeAddress(c.asset.Hex())
			}

			saved, err := s.store.UpsertOracle(gctx, *oracle)
			if err != nil {
				s.logger.Error().Err(err).Str("address", oracle.Address).Msg("failed to upsert oracle")
				return nil
			}

			mu.Lock()
			discovered = append(discovered, saved)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(discovered, func(i, j int) bool {
		if discovered[i].ChainID != discovered[j].ChainID {
			return discovered[i].ChainID < discovered[j].ChainID
		}
		return discovered[i].Address < discovered[j].Address
	})

	perNetwork := make(map[string]int)
	for _, o := range discovered {
		perNetwork[o.Network]++
	}
	for network, n := range perNetwork {
		metrics.OraclesDiscovered.WithLabelValues(network).Set(float64(n))
	}

	s.logger.Info().Int("oracles", len(discovered)).Msg("discovery sweep finished")
	return discovered, nil
}

func (s *Service) collectCandidates(ctx context.Context, sources []source.Source) []candidate {
	seen := make(map[string]struct{})
	var out []candidate

	for _, src := range sources {
		if !s.supports(src.Algorithm) {
			s.logger.Debug().Str("source", src.Address.Hex()).Str("algorithm", src.Algorithm).Msg("skip unsupported source")
			continue
		}

		feeds, err := chain.NewComet(s.reader, src.ChainID, src.Address).PriceFeeds(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("source", src.Address.Hex()).Str("network", src.Network).Msg("failed to resolve market price feeds")
			continue
		}

		for _, feed := range feeds {
			if feed.Feed == (common.Address{}) {
				continue
			}
			key := fmt.Sprintf("%d:%s", src.ChainID, strings.ToLower(feed.Feed.Hex()))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, candidate{
				address: feed.Feed,
				chainID: src.ChainID,
				network: src.Network,
				asset:   feed.Asset,
			})
		}
	}
	return out
}

func (s *Service) supports(algorithm string) bool {
	for _, a := range s.opts.Algorithms {
		if strings.EqualFold(a, algorithm) {
			return true
		}
	}
	return false
}

// Probe checks whether address is a capped adapter and reads its metadata.
// Contracts that revert on the growth cap call yield (nil, nil). Any other
// failure is returned so an unreachable node is not mistaken for a plain feed.
func (s *Service) Probe(ctx context.Context, address common.Address, chainID uint64, network string) (*storage.Oracle, error) {
	adapter := chain.NewAdapter(s.reader, chainID, address)
	if _, err := adapter.MaxRatioGrowthPerSecond(ctx); err != nil {
		if !chain.IsRevert(err) {
			return nil, fmt.Errorf("probe %s: %w", address.Hex(), err)
		}
		s.logger.Debug().Err(err).Str("address", address.Hex()).Str("network", network).Msg("not a capped adapter")
		return nil, nil
	}

	meta, err := adapter.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", address.Hex(), err)
	}

	return &storage.Oracle{
		Address:              storage.NormalizeAddress(address.Hex()),
		ChainID:              chainID,
		Network:              network,
		Description:          meta.Description,
		RatioProvider:        storage.NormalizeAddress(meta.RatioProvider.Hex()),
		BaseAggregator:       storage.NormalizeAddress(meta.BaseAggregator.Hex()),
		MaxYearlyGrowthBps:   meta.MaxYearlyGrowthBps,
		SnapshotRatio:        decimal.NewFromBigInt(meta.SnapshotRatio, 0),
		SnapshotTimestamp:    meta.SnapshotTimestamp,
		MinimumSnapshotDelay: meta.MinimumSnapshotDelay,
		Decimals:             int(meta.Decimals),
		Manager:              storage.NormalizeAddress(meta.Manager.Hex()),
		IsActive:             true,
	}, nil
}
