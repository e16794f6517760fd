package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
networks:
  - name: mainnet
    chain_id: 1
    rpc_url: http://localhost:8545
sources:
  - address: "0xc3d688B66703497DAA19211EEdff47f25384cdc3"
    network: mainnet
    algorithm: comet
alerting:
  cooldown: 5m
  mail:
    enabled: true
    host: smtp.example.com
    from: bot@example.com
    to: ops@example.com,risk@example.com
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Scheduler.CollectInterval != time.Minute {
		t.Fatalf("collect interval default should be 1m, got %s", cfg.Scheduler.CollectInterval)
	}
	if cfg.Scheduler.DiscoveryInterval != 4*time.Hour {
		t.Fatalf("discovery interval default should be 4h, got %s", cfg.Scheduler.DiscoveryInterval)
	}
	if cfg.Alerting.Cooldown != 5*time.Minute {
		t.Fatalf("cooldown should come from file, got %s", cfg.Alerting.Cooldown)
	}
	if len(cfg.Alerting.Mail.To) != 2 {
		t.Fatalf("comma separated recipients should split, got %v", cfg.Alerting.Mail.To)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Algorithm != "comet" {
		t.Fatalf("sources not decoded: %+v", cfg.Sources)
	}
	if n, ok := cfg.Network("mainnet"); !ok || n.ChainID != 1 {
		t.Fatalf("network lookup failed: %+v", n)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CAPOWATCH_ALERTING_COOLDOWN", "90s")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Alerting.Cooldown != 90*time.Second {
		t.Fatalf("env should override file, got %s", cfg.Alerting.Cooldown)
	}
}

func TestValidateRejectsUnknownSourceNetwork(t *testing.T) {
	body := `
networks:
  - name: mainnet
    chain_id: 1
sources:
  - address: "0x1"
    network: base
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("source on an unknown network should be rejected")
	}
}

func TestValidateTelegramRequiresToken(t *testing.T) {
	body := `
alerting:
  telegram:
    enabled: true
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("telegram without bot token should be rejected")
	}
}
