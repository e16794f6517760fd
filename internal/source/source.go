// Package source lists the market contracts whose price feeds are candidates
// for discovery.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"capowatch/internal/config"
)

// Source is one market contract.
type Source struct {
	Address   common.Address
	Network   string
	ChainID   uint64
	Algorithm string
}

// Registry lists sources.
type Registry interface {
	List(ctx context.Context) ([]Source, error)
}

// Static is a registry fixed at start-up.
type Static struct {
	sources []Source
}

// NewStatic validates and resolves the configured sources against the
// configured networks.
func NewStatic(cfg *config.Config) (*Static, error) {
	out := make([]Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if !common.IsHexAddress(s.Address) {
			return nil, fmt.Errorf("source %q is not a hex address", s.Address)
		}
		network, ok := cfg.Network(s.Network)
		if !ok {
			return nil, fmt.Errorf("source %s references unknown network %q", s.Address, s.Network)
		}
		out = append(out, Source{
			Address:   common.HexToAddress(s.Address),
			Network:   network.Name,
			ChainID:   network.ChainID,
			Algorithm: strings.ToLower(strings.TrimSpace(s.Algorithm)),
		})
	}
	return &Static{sources: out}, nil
}

// NewStaticFrom wraps an already resolved list.
func NewStaticFrom(sources ...Source) *Static {
	return &Static{sources: append([]Source(nil), sources...)}
}

// List returns a copy of the registry.
func (s *Static) List(_ context.Context) ([]Source, error) {
	return append([]Source(nil), s.sources...), nil
}
