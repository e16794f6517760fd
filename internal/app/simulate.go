package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"capowatch/internal/alerting"
	"capowatch/internal/chain"
	"capowatch/internal/chain/chaintest"
	"capowatch/internal/storage"
)

const simulatedChainID = 1

var simulatedOracle = common.HexToAddress("0x000000000000000000000000000000000000ca90")

// SimulateAlert 对一个内存中的模拟预言机执行一次完整采集，验证告警通道。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		return errors.New("未配置任何告警通道")
	}

	fake, mem, err := simulationFixture(ctx, opts.Scenario, time.Now().UTC())
	if err != nil {
		return err
	}

	alerts := alerting.NewService(mem, notifiers, nil, alerting.Options{}, a.Logger)
	summary, err := a.newCollector(fake, mem, alerts).Run(ctx)
	if err != nil {
		return err
	}

	raised, err := mem.ListRecentAlerts(ctx, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "scenario %s: %d alerts raised\n", opts.Scenario, summary.Alerts)
	for _, alert := range raised {
		fmt.Fprintf(os.Stdout, "  %s %s %s\n", alert.Type, alert.Severity, alert.Status)
	}
	return nil
}

// simulationFixture serves one adapter with a 10% yearly cap whose snapshot
// is half a year old, tuned to trigger the requested scenario.
func simulationFixture(ctx context.Context, scenario string, now time.Time) (*chaintest.Fake, *storage.Memory, error) {
	const halfYear = 15_768_000

	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	perMille := func(n int64) *big.Int {
		v := new(big.Int).Mul(wad, big.NewInt(n))
		return v.Quo(v, big.NewInt(1000))
	}

	fixture := chaintest.AdapterFixture{
		Description:        "Simulated capped adapter",
		Decimals:           8,
		SnapshotRatio:      wad,
		SnapshotTimestamp:  now.Unix() - halfYear,
		MaxYearlyGrowthBps: 1000,
		Ratio:              perMille(1030),
		Price:              big.NewInt(300_000_000_000),
	}

	fake := chaintest.NewFake()
	fake.SetBlock(simulatedChainID, chain.Block{Number: 1, Timestamp: now.Unix()})

	mem := storage.NewMemory()
	if _, err := mem.UpsertOracle(ctx, storage.Oracle{
		Address:     simulatedOracle.Hex(),
		ChainID:     simulatedChainID,
		Network:     "simulation",
		Description: fixture.Description,
	}); err != nil {
		return nil, nil, err
	}

	switch scenario {
	case "capped":
		fixture.Ratio = perMille(1060)
		fixture.Capped = true
	case "rapid":
		fixture.Ratio = perMille(1048)
	case "slow":
		fixture.Ratio = perMille(1001)
	case "spike":
		if _, err := mem.InsertSnapshot(ctx, storage.Snapshot{
			OracleAddress: simulatedOracle.Hex(),
			OracleName:    fixture.Description,
			ChainID:       simulatedChainID,
			Price:         decimal.NewFromInt(250_000_000_000),
			Timestamp:     now.Add(-25 * time.Hour),
		}); err != nil {
			return nil, nil, err
		}
	case "error":
	default:
		return nil, nil, fmt.Errorf("unknown scenario %q (capped, rapid, slow, spike, error)", scenario)
	}

	fake.RespondAdapter(simulatedChainID, simulatedOracle, fixture)
	if scenario == "error" {
		fake.Fail(simulatedChainID, simulatedOracle, "getRatio", errors.New("simulated rpc failure"))
	}
	return fake, mem, nil
}
