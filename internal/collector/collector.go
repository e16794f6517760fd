// Package collector polls every active oracle, stores a snapshot per poll
// and raises alerts derived from it.
package collector

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"capowatch/internal/alerting"
	"capowatch/internal/capmath"
	"capowatch/internal/chain"
	"capowatch/internal/metrics"
	"capowatch/internal/storage"
)

// ErrTickInFlight is returned by Run while another tick is still executing.
var ErrTickInFlight = errors.New("collector: previous tick still running")

// AlertRaiser is the subset of the alert service used by the collector.
type AlertRaiser interface {
	CreateAlert(ctx context.Context, req alerting.Request) (*storage.Alert, error)
}

// Options hold the alert thresholds.
type Options struct {
	RapidGrowthUtilization float64
	SlowGrowthUtilization  float64
	PriceSpikePct          float64
	PriceSpikeWindow       time.Duration
	Now                    func() time.Time
}

// OracleState is what the collector remembers about one oracle between
// ticks.
type OracleState struct {
	ConsecutiveFailures int
	LastBlock           uint64
	LastSuccess         time.Time
	LastError           string
}

// Summary reports one tick.
type Summary struct {
	TickID    string
	Oracles   int
	Succeeded int
	Failed    int
	Alerts    int
}

// Collector runs snapshot ticks.
type Collector struct {
	reader    chain.Reader
	oracles   storage.OracleStore
	snapshots storage.SnapshotStore
	alerts    AlertRaiser
	opts      Options
	logger    zerolog.Logger

	rapid    decimal.Decimal
	slow     decimal.Decimal
	spikeBps int64

	running atomic.Bool
	mu      sync.Mutex
	states  map[string]*OracleState
}

// New constructs a collector.
func New(reader chain.Reader, oracles storage.OracleStore, snapshots storage.SnapshotStore, alerts AlertRaiser, opts Options, logger zerolog.Logger) *Collector {
	if opts.RapidGrowthUtilization <= 0 {
		opts.RapidGrowthUtilization = 90
	}
	if opts.SlowGrowthUtilization <= 0 {
		opts.SlowGrowthUtilization = 10
	}
	if opts.PriceSpikePct <= 0 {
		opts.PriceSpikePct = 10
	}
	if opts.PriceSpikeWindow <= 0 {
		opts.PriceSpikeWindow = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Collector{
		reader:    reader,
		oracles:   oracles,
		snapshots: snapshots,
		alerts:    alerts,
		opts:      opts,
		logger:    logger.With().Str("component", "collector").Logger(),
		rapid:     decimal.NewFromFloat(opts.RapidGrowthUtilization),
		slow:      decimal.NewFromFloat(opts.SlowGrowthUtilization),
		spikeBps:  decimal.NewFromFloat(opts.PriceSpikePct).Mul(decimal.NewFromInt(100)).IntPart(),
		states:    make(map[string]*OracleState),
	}
}

// Collect runs one tick. A tick that overlaps a running one is skipped.
func (c *Collector) Collect(ctx context.Context) error {
	_, err := c.Run(ctx)
	if errors.Is(err, ErrTickInFlight) {
		c.logger.Warn().Msg("previous collection still running, skipping tick")
		return nil
	}
	return err
}

// Run polls every active oracle in turn. A failing oracle raises an ERROR
// alert and does not stop the tick.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Summary{}, ErrTickInFlight
	}
	defer c.running.Store(false)

	summary := Summary{TickID: uuid.NewString()}
	logger := c.logger.With().Str("tick_id", summary.TickID).Logger()

	oracles, err := c.oracles.ListActiveOracles(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active oracles: %w", err)
	}
	summary.Oracles = len(oracles)

	for _, oracle := range oracles {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		raised, stage, err := c.collectOne(ctx, oracle)
		summary.Alerts += raised
		if err != nil {
			summary.Failed++
			c.recordFailure(oracle, err)
			logger.Error().Err(err).Str("oracle", oracle.Address).Str("stage", stage).Msg("oracle collection failed")
			if c.raise(ctx, alerting.Request{
				OracleAddress: oracle.Address,
				OracleName:    oracle.Description,
				ChainID:       oracle.ChainID,
				Type:          storage.AlertError,
				Severity:      storage.SeverityCritical,
				Message:       fmt.Sprintf("collection failed at %s", stage),
				Payload:       alerting.ErrorPayload{Stage: stage, Error: err.Error()},
			}) {
				summary.Alerts++
			}
			continue
		}
		summary.Succeeded++
	}

	logger.Info().
		Int("oracles", summary.Oracles).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("alerts", summary.Alerts).
		Msg("collection tick finished")
	return summary, nil
}

// Status returns a copy of the remembered state of an oracle.
func (c *Collector) Status(address string) (OracleState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[storage.NormalizeAddress(address)]
	if !ok {
		return OracleState{}, false
	}
	return *st, true
}

func (c *Collector) collectOne(ctx context.Context, oracle storage.Oracle) (int, string, error) {
	block, err := c.reader.LatestBlock(ctx, oracle.ChainID)
	if err != nil {
		return 0, "latest_block", err
	}

	adapter := chain.NewAdapter(c.reader, oracle.ChainID, common.HexToAddress(oracle.Address))
	state, err := adapter.State(ctx, block)
	if err != nil {
		return 0, "read_state", err
	}

	result := capmath.Evaluate(capmath.State{
		SnapshotRatio:      state.SnapshotRatio,
		SnapshotTimestamp:  state.SnapshotTimestamp,
		MaxYearlyGrowthBps: state.MaxYearlyGrowthBps,
		CurrentRatio:       state.Ratio,
		CurrentTimestamp:   block.Timestamp,
	})

	now := c.opts.Now()
	snapshot, err := c.snapshots.InsertSnapshot(ctx, storage.Snapshot{
		OracleAddress:      oracle.Address,
		OracleName:         oracle.Description,
		ChainID:            oracle.ChainID,
		Ratio:              decimal.NewFromBigInt(state.Ratio, 0),
		Price:              decimal.NewFromBigInt(state.Price, 0),
		SnapshotRatio:      decimal.NewFromBigInt(state.SnapshotRatio, 0),
		SnapshotTimestamp:  state.SnapshotTimestamp,
		MaxYearlyGrowthBps: state.MaxYearlyGrowthBps,
		IsCapped:           state.IsCapped,
		CurrentGrowthRate:  result.GrowthRatePercent,
		BlockNumber:        block.Number,
		Metadata: storage.SnapshotMetadata{
			MaxRatio:           decimal.NewFromBigInt(result.MaxRatio, 0),
			UtilizationPercent: result.UtilizationPercent,
			OnChainTimestamp:   block.Timestamp,
			ComputedCapped:     result.IsCapped,
		},
		Timestamp: now,
	})
	if err != nil {
		return 0, "persist", err
	}

	c.recordSuccess(oracle, snapshot, result)

	raised := c.evaluateAlerts(ctx, oracle, snapshot, result)
	spike, err := c.checkPriceSpike(ctx, oracle, state.Price, now)
	if err != nil {
		return raised, "price_history", err
	}
	if spike {
		raised++
	}
	return raised, "", nil
}

func (c *Collector) evaluateAlerts(ctx context.Context, oracle storage.Oracle, snap storage.Snapshot, result capmath.Result) int {
	raised := 0
	growth := alerting.GrowthPayload{
		Ratio:              snap.Ratio,
		SnapshotRatio:      snap.SnapshotRatio,
		GrowthRatePercent:  result.GrowthRatePercent,
		UtilizationPercent: result.UtilizationPercent,
		MaxYearlyGrowthBps: snap.MaxYearlyGrowthBps,
	}

	if snap.IsCapped {
		if c.raise(ctx, alerting.Request{
			OracleAddress: oracle.Address,
			OracleName:    oracle.Description,
			ChainID:       oracle.ChainID,
			Type:          storage.AlertCapped,
			Severity:      storage.SeverityWarning,
			Message:       "ratio is capped at the maximum allowed growth",
			Payload: alerting.CappedPayload{
				Ratio:              snap.Ratio,
				MaxRatio:           snap.Metadata.MaxRatio,
				UtilizationPercent: result.UtilizationPercent,
				BlockNumber:        snap.BlockNumber,
			},
		}) {
			raised++
		}
	}

	if result.UtilizationPercent.GreaterThan(c.rapid) {
		if c.raise(ctx, alerting.Request{
			OracleAddress: oracle.Address,
			OracleName:    oracle.Description,
			ChainID:       oracle.ChainID,
			Type:          storage.AlertRapidGrowth,
			Severity:      storage.SeverityWarning,
			Message:       fmt.Sprintf("growth budget utilization above %s%%", c.rapid),
			Payload:       growth,
		}) {
			raised++
		}
	}

	if result.GrowthRatePercent.IsPositive() && result.UtilizationPercent.LessThan(c.slow) {
		if c.raise(ctx, alerting.Request{
			OracleAddress: oracle.Address,
			OracleName:    oracle.Description,
			ChainID:       oracle.ChainID,
			Type:          storage.AlertSlowGrowth,
			Severity:      storage.SeverityInfo,
			Message:       fmt.Sprintf("growth budget utilization below %s%%", c.slow),
			Payload:       growth,
		}) {
			raised++
		}
	}
	return raised
}

// checkPriceSpike compares the current price with the newest snapshot at
// least one window old. Only rises count.
func (c *Collector) checkPriceSpike(ctx context.Context, oracle storage.Oracle, price *big.Int, now time.Time) (bool, error) {
	old, err := c.snapshots.LatestSnapshotAtOrBefore(ctx, oracle.Address, now.Add(-c.opts.PriceSpikeWindow))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	oldPrice := old.Price.BigInt()
	bps, ok := capmath.PriceChangeBps(oldPrice, price)
	if !ok || bps.Cmp(big.NewInt(c.spikeBps)) <= 0 {
		return false, nil
	}
	pct, _ := capmath.PriceChangePercent(oldPrice, price)

	return c.raise(ctx, alerting.Request{
		OracleAddress: oracle.Address,
		OracleName:    oracle.Description,
		ChainID:       oracle.ChainID,
		Type:          storage.AlertPriceSpike,
		Severity:      storage.SeverityCritical,
		Message:       fmt.Sprintf("price rose %s%% within %s", pct.StringFixed(2), c.opts.PriceSpikeWindow),
		Payload: alerting.SpikePayload{
			OldPrice:      old.Price,
			NewPrice:      decimal.NewFromBigInt(price, 0),
			ChangePercent: pct,
			OldTimestamp:  old.Timestamp,
		},
	}), nil
}

func (c *Collector) raise(ctx context.Context, req alerting.Request) bool {
	if c.alerts == nil {
		return false
	}
	alert, err := c.alerts.CreateAlert(ctx, req)
	if err != nil {
		c.logger.Error().Err(err).Str("oracle", req.OracleAddress).Str("type", string(req.Type)).Msg("failed to create alert")
		return false
	}
	return alert != nil
}

func (c *Collector) state(address string) *OracleState {
	st, ok := c.states[address]
	if !ok {
		st = &OracleState{}
		c.states[address] = st
	}
	return st
}

func (c *Collector) recordSuccess(oracle storage.Oracle, snap storage.Snapshot, result capmath.Result) {
	c.mu.Lock()
	st := c.state(oracle.Address)
	st.ConsecutiveFailures = 0
	st.LastBlock = snap.BlockNumber
	st.LastSuccess = snap.Timestamp
	st.LastError = ""
	c.mu.Unlock()

	util, _ := result.UtilizationPercent.Float64()
	growth, _ := result.GrowthRatePercent.Float64()
	metrics.OraclePollsTotal.WithLabelValues(oracle.Address, "ok").Inc()
	metrics.OracleUtilization.WithLabelValues(oracle.Address, oracle.Network).Set(util)
	metrics.OracleGrowthRate.WithLabelValues(oracle.Address, oracle.Network).Set(growth)
	metrics.OracleCapped.WithLabelValues(oracle.Address, oracle.Network).Set(metrics.BoolGauge(snap.IsCapped))
}

func (c *Collector) recordFailure(oracle storage.Oracle, err error) {
	c.mu.Lock()
	st := c.state(oracle.Address)
	st.ConsecutiveFailures++
	st.LastError = err.Error()
	failures := st.ConsecutiveFailures
	c.mu.Unlock()

	metrics.OraclePollsTotal.WithLabelValues(oracle.Address, "error").Inc()
	if failures > 1 {
		c.logger.Warn().Str("oracle", oracle.Address).Int("consecutive_failures", failures).Msg("oracle keeps failing")
	}
}
