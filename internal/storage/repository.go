package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("storage: not found")
)

const (
	oracleColumns = `address, chain_id, network, description, ratio_provider, base_aggregator,
        asset_address, max_yearly_growth_bps, snapshot_ratio::text, snapshot_timestamp,
        minimum_snapshot_delay, decimals, manager, is_active, discovered_at, updated_at`

	upsertOracleSQL = `INSERT INTO oracles (
        address, chain_id, network, description, ratio_provider, base_aggregator,
        asset_address, max_yearly_growth_bps, snapshot_ratio, snapshot_timestamp,
        minimum_snapshot_delay, decimals, manager
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9::text::numeric,$10,$11,$12,$13
    )
    ON CONFLICT (address) DO UPDATE
    SET
        chain_id               = EXCLUDED.chain_id,
        network                = EXCLUDED.network,
        description            = EXCLUDED.description,
        ratio_provider         = EXCLUDED.ratio_provider,
        base_aggregator        = EXCLUDED.base_aggregator,
        asset_address          = CASE WHEN EXCLUDED.asset_address = '' THEN oracles.asset_address ELSE EXCLUDED.asset_address END,
        max_yearly_growth_bps  = EXCLUDED.max_yearly_growth_bps,
        snapshot_ratio         = EXCLUDED.snapshot_ratio,
        snapshot_timestamp     = EXCLUDED.snapshot_timestamp,
        minimum_snapshot_delay = EXCLUDED.minimum_snapshot_delay,
        decimals               = EXCLUDED.decimals,
        manager                = EXCLUDED.manager,
        updated_at             = now()
    RETURNING ` + oracleColumns + `;`

	listOraclesSQL       = `SELECT ` + oracleColumns + ` FROM oracles ORDER BY chain_id, address;`
	listActiveOraclesSQL = `SELECT ` + oracleColumns + ` FROM oracles WHERE is_active ORDER BY chain_id, address;`
	getOracleSQL         = `SELECT ` + oracleColumns + ` FROM oracles WHERE address = $1;`
	setOracleActiveSQL   = `UPDATE oracles SET is_active = $2, updated_at = now() WHERE address = $1;`

	snapshotColumns = `id, oracle_address, oracle_name, chain_id, ratio::text, price::text,
        snapshot_ratio::text, snapshot_timestamp, max_yearly_growth_bps, is_capped,
        current_growth_rate::text, block_number, metadata, ts`

	insertSnapshotSQL = `INSERT INTO oracle_snapshots (
        oracle_address, oracle_name, chain_id, ratio, price, snapshot_ratio,
        snapshot_timestamp, max_yearly_growth_bps, is_capped, current_growth_rate,
        block_number, metadata, ts
    ) VALUES (
        $1,$2,$3,$4::text::numeric,$5::text::numeric,$6::text::numeric,
        $7,$8,$9,$10::text::numeric,$11,$12,$13
    )
    RETURNING id;`

	latestSnapshotAtOrBeforeSQL = `SELECT ` + snapshotColumns + `
    FROM oracle_snapshots
    WHERE oracle_address = $1
      AND ts <= $2
    ORDER BY ts DESC
    LIMIT 1;`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM oracle_snapshots
    WHERE oracle_address = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts;`

	listRecentSnapshotsSQL = `SELECT ` + snapshotColumns + `
    FROM oracle_snapshots
    WHERE oracle_address = $1
    ORDER BY ts DESC
    LIMIT $2;`

	aggregationColumns = `a.oracle_address, a.oracle_name, a.chain_id, a.day,
        a.avg_ratio::text, a.min_ratio::text, a.max_ratio::text,
        a.avg_price::text, a.min_price::text, a.max_price::text,
        a.cap::text, a.capped_count, a.total_count, a.created_at`

	upsertAggregationSQL = `INSERT INTO oracle_daily_aggregations (
        oracle_address, oracle_name, chain_id, day,
        avg_ratio, min_ratio, max_ratio, avg_price, min_price, max_price,
        cap, capped_count, total_count
    ) VALUES (
        $1,$2,$3,$4,
        $5::text::numeric,$6::text::numeric,$7::text::numeric,
        $8::text::numeric,$9::text::numeric,$10::text::numeric,
        $11::text::numeric,$12,$13
    )
    ON CONFLICT (oracle_address, day) DO UPDATE
    SET
        oracle_name  = EXCLUDED.oracle_name,
        chain_id     = EXCLUDED.chain_id,
        avg_ratio    = EXCLUDED.avg_ratio,
        min_ratio    = EXCLUDED.min_ratio,
        max_ratio    = EXCLUDED.max_ratio,
        avg_price    = EXCLUDED.avg_price,
        min_price    = EXCLUDED.min_price,
        max_price    = EXCLUDED.max_price,
        cap          = EXCLUDED.cap,
        capped_count = EXCLUDED.capped_count,
        total_count  = EXCLUDED.total_count,
        created_at   = now();`

	listAggregationsSQL = `SELECT ` + aggregationColumns + `
    FROM oracle_daily_aggregations a
    LEFT JOIN oracles o ON o.address = a.oracle_address
    WHERE ($1 = '' OR a.oracle_address = $1)
      AND ($2 = '' OR o.asset_address = $2)
    ORDER BY a.day DESC, a.oracle_address;`

	alertColumns = `id, oracle_address, chain_id, type, severity, message, data, status, ts, sent_at, error`

	insertAlertSQL = `INSERT INTO oracle_alerts (
        oracle_address, chain_id, type, severity, message, data, status, ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id;`

	markAlertSentSQL   = `UPDATE oracle_alerts SET status = 'sent', sent_at = $2, error = NULL WHERE id = $1;`
	markAlertFailedSQL = `UPDATE oracle_alerts SET status = 'failed', error = $2 WHERE id = $1;`

	latestDeliveredAlertSQL = `SELECT ` + alertColumns + `
    FROM oracle_alerts
    WHERE oracle_address = $1
      AND type = $2
      AND (status = 'sent' OR (status = 'pending' AND severity = 'info'))
    ORDER BY ts DESC
    LIMIT 1;`

	listRecentAlertsSQL = `SELECT ` + alertColumns + `
    FROM oracle_alerts
    ORDER BY ts DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// OracleStore is the durable oracle registry.
type OracleStore interface {
	UpsertOracle(ctx context.Context, oracle Oracle) (Oracle, error)
	ListOracles(ctx context.Context) ([]Oracle, error)
	ListActiveOracles(ctx context.Context) ([]Oracle, error)
	GetOracle(ctx context.Context, address string) (Oracle, error)
}

// SnapshotStore persists the append-only snapshot series.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snapshot Snapshot) (Snapshot, error)
	LatestSnapshotAtOrBefore(ctx context.Context, oracleAddress string, at time.Time) (Snapshot, error)
	ListSnapshotsBetween(ctx context.Context, oracleAddress string, from, to time.Time) ([]Snapshot, error)
	ListRecentSnapshots(ctx context.Context, oracleAddress string, limit int) ([]Snapshot, error)
}

// AggregationStore persists daily rollups.
type AggregationStore interface {
	UpsertDailyAggregation(ctx context.Context, agg DailyAggregation) error
	ListDailyAggregations(ctx context.Context, filter AggregationFilter) ([]DailyAggregation, error)
}

// AlertStore persists alerts and their dispatch outcome.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkAlertFailed(ctx context.Context, id int64, errMsg string) error
	LatestDeliveredAlert(ctx context.Context, oracleAddress string, alertType AlertType) (Alert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// Repository bundles every store the jobs use.
type Repository interface {
	OracleStore
	SnapshotStore
	AggregationStore
	AlertStore
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store implements every store interface on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// NormalizeAddress lowercases a hex address for use as a registry key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// UpsertOracle inserts or refreshes an oracle keyed by address. The active
// flag of an existing row is left untouched.
func (s *Store) UpsertOracle(ctx context.Context, oracle Oracle) (Oracle, error) {
	pool, err := s.getPool()
	if err != nil {
		return Oracle{}, err
	}

	row := pool.QueryRow(ctx, upsertOracleSQL,
		NormalizeAddress(oracle.Address),
		int64(oracle.ChainID),
		oracle.Network,
		oracle.Description,
		NormalizeAddress(oracle.RatioProvider),
		NormalizeAddress(oracle.BaseAggregator),
		NormalizeAddress(oracle.AssetAddress),
		oracle.MaxYearlyGrowthBps,
		oracle.SnapshotRatio.String(),
		oracle.SnapshotTimestamp,
		oracle.MinimumSnapshotDelay,
		oracle.Decimals,
		NormalizeAddress(oracle.Manager),
	)
	saved, err := scanOracle(row)
	if err != nil {
		return Oracle{}, fmt.Errorf("upsert oracle: %w", err)
	}
	return saved, nil
}

// ListOracles lists every known oracle.
func (s *Store) ListOracles(ctx context.Context) ([]Oracle, error) {
	return s.queryOracles(ctx, listOraclesSQL)
}

// ListActiveOracles lists oracles that should be polled.
func (s *Store) ListActiveOracles(ctx context.Context) ([]Oracle, error) {
	return s.queryOracles(ctx, listActiveOraclesSQL)
}

// GetOracle returns one oracle by address.
func (s *Store) GetOracle(ctx context.Context, address string) (Oracle, error) {
	pool, err := s.getPool()
	if err != nil {
		return Oracle{}, err
	}
	oracle, err := scanOracle(pool.QueryRow(ctx, getOracleSQL, NormalizeAddress(address)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Oracle{}, ErrNotFound
	}
	if err != nil {
		return Oracle{}, fmt.Errorf("get oracle: %w", err)
	}
	return oracle, nil
}

// SetOracleActive toggles whether an oracle is polled.
func (s *Store) SetOracleActive(ctx context.Context, address string, active bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, setOracleActiveSQL, NormalizeAddress(address), active)
	if err != nil {
		return fmt.Errorf("set oracle active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryOracles(ctx context.Context, query string) ([]Oracle, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list oracles: %w", err)
	}
	defer rows.Close()

	oracles := make([]Oracle, 0)
	for rows.Next() {
		oracle, scanErr := scanOracle(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		oracles = append(oracles, oracle)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return oracles, nil
}

// InsertSnapshot appends a snapshot row.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot Snapshot) (Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return Snapshot{}, err
	}

	metadata, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal snapshot metadata: %w", err)
	}

	snapshot.OracleAddress = NormalizeAddress(snapshot.OracleAddress)
	if err := pool.QueryRow(ctx, insertSnapshotSQL,
		snapshot.OracleAddress,
		snapshot.OracleName,
		int64(snapshot.ChainID),
		snapshot.Ratio.String(),
		snapshot.Price.String(),
		snapshot.SnapshotRatio.String(),
		snapshot.SnapshotTimestamp,
		snapshot.MaxYearlyGrowthBps,
		snapshot.IsCapped,
		snapshot.CurrentGrowthRate.String(),
		int64(snapshot.BlockNumber),
		metadata,
		snapshot.Timestamp,
	).Scan(&snapshot.ID); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return snapshot, nil
}

// LatestSnapshotAtOrBefore returns the newest snapshot with ts <= at.
func (s *Store) LatestSnapshotAtOrBefore(ctx context.Context, oracleAddress string, at time.Time) (Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return Snapshot{}, err
	}

	rows, err := pool.Query(ctx, latestSnapshotAtOrBeforeSQL, NormalizeAddress(oracleAddress), at)
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snapshots, err := collectSnapshots(rows)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snapshots) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return snapshots[0], nil
}

// ListSnapshotsBetween lists snapshots with from <= ts < to in ascending order.
func (s *Store) ListSnapshotsBetween(ctx context.Context, oracleAddress string, from, to time.Time) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listSnapshotsBetweenSQL, NormalizeAddress(oracleAddress), from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	return collectSnapshots(rows)
}

// ListRecentSnapshots lists the newest snapshots first.
func (s *Store) ListRecentSnapshots(ctx context.Context, oracleAddress string, limit int) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentSnapshotsSQL, NormalizeAddress(oracleAddress), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// UpsertDailyAggregation writes or overwrites the rollup for (oracle, day).
func (s *Store) UpsertDailyAggregation(ctx context.Context, agg DailyAggregation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var capValue interface{}
	if agg.Cap != nil {
		capValue = agg.Cap.String()
	}

	_, err = pool.Exec(ctx, upsertAggregationSQL,
		NormalizeAddress(agg.OracleAddress),
		agg.OracleName,
		int64(agg.ChainID),
		agg.Date.UTC(),
		agg.AvgRatio.String(),
		agg.MinRatio.String(),
		agg.MaxRatio.String(),
		agg.AvgPrice.String(),
		agg.MinPrice.String(),
		agg.MaxPrice.String(),
		capValue,
		agg.CappedCount,
		agg.TotalCount,
	)
	if err != nil {
		return fmt.Errorf("upsert daily aggregation: %w", err)
	}
	return nil
}

// ListDailyAggregations lists rollups, newest day first.
func (s *Store) ListDailyAggregations(ctx context.Context, filter AggregationFilter) ([]DailyAggregation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listAggregationsSQL,
		NormalizeAddress(filter.OracleAddress),
		NormalizeAddress(filter.AssetID),
	)
	if err != nil {
		return nil, fmt.Errorf("list daily aggregations: %w", err)
	}
	defer rows.Close()

	result := make([]DailyAggregation, 0)
	for rows.Next() {
		agg, scanErr := scanAggregation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, agg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return result, nil
}

// InsertAlert persists a new alert and returns it with its id.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	var data interface{}
	if len(alert.Data) > 0 {
		data = []byte(alert.Data)
	}

	alert.OracleAddress = NormalizeAddress(alert.OracleAddress)
	if err := pool.QueryRow(ctx, insertAlertSQL,
		alert.OracleAddress,
		int64(alert.ChainID),
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		data,
		string(alert.Status),
		alert.Timestamp,
	).Scan(&alert.ID); err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// MarkAlertSent records a successful dispatch.
func (s *Store) MarkAlertSent(ctx context.Context, id int64, sentAt time.Time) error {
	return s.execAlertUpdate(ctx, "mark alert sent", markAlertSentSQL, id, sentAt)
}

// MarkAlertFailed records a failed dispatch.
func (s *Store) MarkAlertFailed(ctx context.Context, id int64, errMsg string) error {
	return s.execAlertUpdate(ctx, "mark alert failed", markAlertFailedSQL, id, errMsg)
}

func (s *Store) execAlertUpdate(ctx context.Context, op, query string, args ...interface{}) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestDeliveredAlert returns the newest alert of the given type that counts
// toward the cooldown: sent alerts, and info alerts which are never dispatched.
func (s *Store) LatestDeliveredAlert(ctx context.Context, oracleAddress string, alertType AlertType) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	rows, err := pool.Query(ctx, latestDeliveredAlertSQL, NormalizeAddress(oracleAddress), string(alertType))
	if err != nil {
		return Alert{}, fmt.Errorf("latest delivered alert: %w", err)
	}
	alerts, err := collectAlerts(rows)
	if err != nil {
		return Alert{}, err
	}
	if len(alerts) == 0 {
		return Alert{}, ErrNotFound
	}
	return alerts[0], nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentAlertsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	return collectAlerts(rows)
}

func scanOracle(row pgx.Row) (Oracle, error) {
	var (
		o        Oracle
		chainID  int64
		ratioStr string
	)
	if err := row.Scan(
		&o.Address,
		&chainID,
		&o.Network,
		&o.Description,
		&o.RatioProvider,
		&o.BaseAggregator,
		&o.AssetAddress,
		&o.MaxYearlyGrowthBps,
		&ratioStr,
		&o.SnapshotTimestamp,
		&o.MinimumSnapshotDelay,
		&o.Decimals,
		&o.Manager,
		&o.IsActive,
		&o.DiscoveredAt,
		&o.UpdatedAt,
	); err != nil {
		return Oracle{}, err
	}

	ratio, err := decimal.NewFromString(ratioStr)
	if err != nil {
		return Oracle{}, fmt.Errorf("parse snapshot ratio: %w", err)
	}
	o.ChainID = uint64(chainID)
	o.SnapshotRatio = ratio
	return o, nil
}

func collectSnapshots(rows pgx.Rows) ([]Snapshot, error) {
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanSnapshot(rows pgx.Rows) (Snapshot, error) {
	var (
		snap                                Snapshot
		chainID, block                      int64
		ratioStr, priceStr, snapStr, growth string
		metadata                            []byte
	)
	if err := rows.Scan(
		&snap.ID,
		&snap.OracleAddress,
		&snap.OracleName,
		&chainID,
		&ratioStr,
		&priceStr,
		&snapStr,
		&snap.SnapshotTimestamp,
		&snap.MaxYearlyGrowthBps,
		&snap.IsCapped,
		&growth,
		&block,
		&metadata,
		&snap.Timestamp,
	); err != nil {
		return Snapshot{}, err
	}

	var err error
	if snap.Ratio, err = decimal.NewFromString(ratioStr); err != nil {
		return Snapshot{}, fmt.Errorf("parse ratio: %w", err)
	}
	if snap.Price, err = decimal.NewFromString(priceStr); err != nil {
		return Snapshot{}, fmt.Errorf("parse price: %w", err)
	}
	if snap.SnapshotRatio, err = decimal.NewFromString(snapStr); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot ratio: %w", err)
	}
	if snap.CurrentGrowthRate, err = decimal.NewFromString(growth); err != nil {
		return Snapshot{}, fmt.Errorf("parse growth rate: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &snap.Metadata); err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot metadata: %w", err)
		}
	}
	snap.ChainID = uint64(chainID)
	snap.BlockNumber = uint64(block)
	return snap, nil
}

func scanAggregation(rows pgx.Rows) (DailyAggregation, error) {
	var (
		agg     DailyAggregation
		chainID int64
		values  [6]string
		capStr  *string
	)
	if err := rows.Scan(
		&agg.OracleAddress,
		&agg.OracleName,
		&chainID,
		&agg.Date,
		&values[0], &values[1], &values[2],
		&values[3], &values[4], &values[5],
		&capStr,
		&agg.CappedCount,
		&agg.TotalCount,
		&agg.CreatedAt,
	); err != nil {
		return DailyAggregation{}, err
	}

	targets := []*decimal.Decimal{&agg.AvgRatio, &agg.MinRatio, &agg.MaxRatio, &agg.AvgPrice, &agg.MinPrice, &agg.MaxPrice}
	for i, target := range targets {
		parsed, err := decimal.NewFromString(values[i])
		if err != nil {
			return DailyAggregation{}, fmt.Errorf("parse aggregation value: %w", err)
		}
		*target = parsed
	}
	if capStr != nil {
		parsed, err := decimal.NewFromString(*capStr)
		if err != nil {
			return DailyAggregation{}, fmt.Errorf("parse cap: %w", err)
		}
		agg.Cap = &parsed
	}
	agg.ChainID = uint64(chainID)
	return agg, nil
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var (
			a                      Alert
			chainID                int64
			alertType, sev, status string
		)
		if err := rows.Scan(
			&a.ID,
			&a.OracleAddress,
			&chainID,
			&alertType,
			&sev,
			&a.Message,
			&a.Data,
			&status,
			&a.Timestamp,
			&a.SentAt,
			&a.Error,
		); err != nil {
			return nil, err
		}
		a.ChainID = uint64(chainID)
		a.Type = AlertType(alertType)
		a.Severity = Severity(sev)
		a.Status = AlertStatus(status)
		alerts = append(alerts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var (
	_ OracleStore      = (*Store)(nil)
	_ SnapshotStore    = (*Store)(nil)
	_ AggregationStore = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
	_ Repository       = (*Store)(nil)
)
