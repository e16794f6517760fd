package source

import (
	"context"
	"testing"

	"capowatch/internal/config"
)

func TestNewStaticResolvesNetworks(t *testing.T) {
	cfg := &config.Config{
		Networks: []config.NetworkConfig{{Name: "mainnet", ChainID: 1}, {Name: "base", ChainID: 8453}},
		Sources: []config.SourceConfig{
			{Address: "0xc3d688B66703497DAA19211EEdff47f25384cdc3", Network: "mainnet", Algorithm: " Comet "},
			{Address: "0xb125E6687d4313864e53df431d5425969c15Eb2F", Network: "base", Algorithm: "comet"},
		},
	}

	reg, err := NewStatic(cfg)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	list, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(list))
	}
	if list[0].ChainID != 1 || list[0].Algorithm != "comet" {
		t.Fatalf("unexpected first source %+v", list[0])
	}
	if list[1].ChainID != 8453 {
		t.Fatalf("unexpected second source %+v", list[1])
	}

	list[0].Network = "mutated"
	again, _ := reg.List(context.Background())
	if again[0].Network != "mainnet" {
		t.Fatal("List must return a copy")
	}
}

func TestNewStaticRejectsBadAddress(t *testing.T) {
	cfg := &config.Config{
		Networks: []config.NetworkConfig{{Name: "mainnet", ChainID: 1}},
		Sources:  []config.SourceConfig{{Address: "not-an-address", Network: "mainnet"}},
	}
	if _, err := NewStatic(cfg); err == nil {
		t.Fatal("invalid address should be rejected")
	}
}
