package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process implementation of every store interface. It backs
// dry runs without a database and the package tests of the services.
type Memory struct {
	mu           sync.RWMutex
	now          func() time.Time
	oracles      map[string]Oracle
	snapshots    []Snapshot
	aggregations map[string]DailyAggregation
	alerts       []Alert
	nextID       int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:          func() time.Time { return time.Now().UTC() },
		oracles:      make(map[string]Oracle),
		aggregations: make(map[string]DailyAggregation),
	}
}

// SetClock overrides the clock used for discovered/updated timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// UpsertOracle implements OracleStore.
func (m *Memory) UpsertOracle(_ context.Context, oracle Oracle) (Oracle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := NormalizeAddress(oracle.Address)
	oracle.Address = key
	oracle.RatioProvider = NormalizeAddress(oracle.RatioProvider)
	oracle.BaseAggregator = NormalizeAddress(oracle.BaseAggregator)
	oracle.AssetAddress = NormalizeAddress(oracle.AssetAddress)
	oracle.Manager = NormalizeAddress(oracle.Manager)

	if existing, ok := m.oracles[key]; ok {
		oracle.IsActive = existing.IsActive
		oracle.DiscoveredAt = existing.DiscoveredAt
		if oracle.AssetAddress == "" {
			oracle.AssetAddress = existing.AssetAddress
		}
	} else {
		oracle.IsActive = true
		oracle.DiscoveredAt = now
	}
	oracle.UpdatedAt = now
	m.oracles[key] = oracle
	return oracle, nil
}

// ListOracles implements OracleStore.
func (m *Memory) ListOracles(_ context.Context) ([]Oracle, error) {
	return m.listOracles(false), nil
}

// ListActiveOracles implements OracleStore.
func (m *Memory) ListActiveOracles(_ context.Context) ([]Oracle, error) {
	return m.listOracles(true), nil
}

func (m *Memory) listOracles(activeOnly bool) []Oracle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Oracle, 0, len(m.oracles))
	for _, o := range m.oracles {
		if activeOnly && !o.IsActive {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// GetOracle implements OracleStore.
func (m *Memory) GetOracle(_ context.Context, address string) (Oracle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.oracles[NormalizeAddress(address)]
	if !ok {
		return Oracle{}, ErrNotFound
	}
	return o, nil
}

// SetOracleActive toggles polling of an oracle.
func (m *Memory) SetOracleActive(_ context.Context, address string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NormalizeAddress(address)
	o, ok := m.oracles[key]
	if !ok {
		return ErrNotFound
	}
	o.IsActive = active
	o.UpdatedAt = m.now()
	m.oracles[key] = o
	return nil
}

// InsertSnapshot implements SnapshotStore.
func (m *Memory) InsertSnapshot(_ context.Context, snapshot Snapshot) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.ID = m.id()
	snapshot.OracleAddress = NormalizeAddress(snapshot.OracleAddress)
	m.snapshots = append(m.snapshots, snapshot)
	return snapshot, nil
}

// LatestSnapshotAtOrBefore implements SnapshotStore.
func (m *Memory) LatestSnapshotAtOrBefore(_ context.Context, oracleAddress string, at time.Time) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := NormalizeAddress(oracleAddress)
	var (
		best  Snapshot
		found bool
	)
	for _, s := range m.snapshots {
		if s.OracleAddress != key || s.Timestamp.After(at) {
			continue
		}
		if !found || s.Timestamp.After(best.Timestamp) {
			best = s
			found = true
		}
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}
	return best, nil
}

// ListSnapshotsBetween implements SnapshotStore.
func (m *Memory) ListSnapshotsBetween(_ context.Context, oracleAddress string, from, to time.Time) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := NormalizeAddress(oracleAddress)
	out := make([]Snapshot, 0)
	for _, s := range m.snapshots {
		if s.OracleAddress != key || s.Timestamp.Before(from) || !s.Timestamp.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListRecentSnapshots implements SnapshotStore.
func (m *Memory) ListRecentSnapshots(_ context.Context, oracleAddress string, limit int) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := NormalizeAddress(oracleAddress)
	out := make([]Snapshot, 0)
	for _, s := range m.snapshots {
		if s.OracleAddress == key {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func aggregationKey(address string, day time.Time) string {
	return NormalizeAddress(address) + "|" + day.UTC().Format(time.DateOnly)
}

// UpsertDailyAggregation implements AggregationStore.
func (m *Memory) UpsertDailyAggregation(_ context.Context, agg DailyAggregation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg.OracleAddress = NormalizeAddress(agg.OracleAddress)
	agg.CreatedAt = m.now()
	m.aggregations[aggregationKey(agg.OracleAddress, agg.Date)] = agg
	return nil
}

// ListDailyAggregations implements AggregationStore.
func (m *Memory) ListDailyAggregations(_ context.Context, filter AggregationFilter) ([]DailyAggregation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	oracleFilter := NormalizeAddress(filter.OracleAddress)
	assetFilter := NormalizeAddress(filter.AssetID)

	out := make([]DailyAggregation, 0)
	for _, agg := range m.aggregations {
		if oracleFilter != "" && agg.OracleAddress != oracleFilter {
			continue
		}
		if assetFilter != "" && m.oracles[agg.OracleAddress].AssetAddress != assetFilter {
			continue
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].OracleAddress < out[j].OracleAddress
	})
	return out, nil
}

// InsertAlert implements AlertStore.
func (m *Memory) InsertAlert(_ context.Context, alert Alert) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = m.id()
	alert.OracleAddress = NormalizeAddress(alert.OracleAddress)
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// MarkAlertSent implements AlertStore.
func (m *Memory) MarkAlertSent(_ context.Context, id int64, sentAt time.Time) error {
	return m.updateAlert(id, func(a *Alert) {
		a.Status = AlertSent
		a.SentAt = &sentAt
		a.Error = nil
	})
}

// MarkAlertFailed implements AlertStore.
func (m *Memory) MarkAlertFailed(_ context.Context, id int64, errMsg string) error {
	return m.updateAlert(id, func(a *Alert) {
		a.Status = AlertFailed
		a.Error = &errMsg
	})
}

func (m *Memory) updateAlert(id int64, apply func(*Alert)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			apply(&m.alerts[i])
			return nil
		}
	}
	return ErrNotFound
}

// LatestDeliveredAlert implements AlertStore.
func (m *Memory) LatestDeliveredAlert(_ context.Context, oracleAddress string, alertType AlertType) (Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := NormalizeAddress(oracleAddress)
	var (
		best  Alert
		found bool
	)
	for _, a := range m.alerts {
		if a.OracleAddress != key || a.Type != alertType {
			continue
		}
		delivered := a.Status == AlertSent || (a.Status == AlertPending && a.Severity == SeverityInfo)
		if !delivered {
			continue
		}
		if !found || a.Timestamp.After(best.Timestamp) {
			best = a
			found = true
		}
	}
	if !found {
		return Alert{}, ErrNotFound
	}
	return best, nil
}

// ListRecentAlerts implements AlertStore.
func (m *Memory) ListRecentAlerts(_ context.Context, limit int) ([]Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ OracleStore      = (*Memory)(nil)
	_ SnapshotStore    = (*Memory)(nil)
	_ AggregationStore = (*Memory)(nil)
	_ AlertStore       = (*Memory)(nil)
	_ Repository       = (*Memory)(nil)
)
