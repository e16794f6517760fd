package storage

import (
	"context"
	"fmt"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS oracles (
    address                 TEXT PRIMARY KEY,
    chain_id                BIGINT NOT NULL,
    network                 TEXT NOT NULL,
    description             TEXT NOT NULL DEFAULT '',
    ratio_provider          TEXT NOT NULL DEFAULT '',
    base_aggregator         TEXT NOT NULL DEFAULT '',
    asset_address           TEXT NOT NULL DEFAULT '',
    max_yearly_growth_bps   BIGINT NOT NULL CHECK (max_yearly_growth_bps >= 0),
    snapshot_ratio          NUMERIC(78,0) NOT NULL,
    snapshot_timestamp      BIGINT NOT NULL,
    minimum_snapshot_delay  BIGINT NOT NULL DEFAULT 0,
    decimals                INT NOT NULL,
    manager                 TEXT NOT NULL DEFAULT '',
    is_active               BOOLEAN NOT NULL DEFAULT true,
    discovered_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS oracle_snapshots (
    id                      BIGSERIAL PRIMARY KEY,
    oracle_address          TEXT NOT NULL,
    oracle_name             TEXT NOT NULL DEFAULT '',
    chain_id                BIGINT NOT NULL,
    ratio                   NUMERIC(78,0) NOT NULL,
    price                   NUMERIC(78,0) NOT NULL,
    snapshot_ratio          NUMERIC(78,0) NOT NULL,
    snapshot_timestamp      BIGINT NOT NULL,
    max_yearly_growth_bps   BIGINT NOT NULL,
    is_capped               BOOLEAN NOT NULL,
    current_growth_rate     NUMERIC NOT NULL,
    block_number            BIGINT NOT NULL,
    metadata                JSONB NOT NULL DEFAULT '{}'::jsonb,
    ts                      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS oracle_snapshots_oracle_ts_idx
    ON oracle_snapshots (oracle_address, ts DESC);

CREATE TABLE IF NOT EXISTS oracle_daily_aggregations (
    oracle_address  TEXT NOT NULL,
    oracle_name     TEXT NOT NULL DEFAULT '',
    chain_id        BIGINT NOT NULL,
    day             DATE NOT NULL,
    avg_ratio       NUMERIC(78,0) NOT NULL,
    min_ratio       NUMERIC(78,0) NOT NULL,
    max_ratio       NUMERIC(78,0) NOT NULL,
    avg_price       NUMERIC(78,0) NOT NULL,
    min_price       NUMERIC(78,0) NOT NULL,
    max_price       NUMERIC(78,0) NOT NULL,
    cap             NUMERIC(78,0),
    capped_count    INT NOT NULL,
    total_count     INT NOT NULL CHECK (capped_count <= total_count),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (oracle_address, day)
);

CREATE TABLE IF NOT EXISTS oracle_alerts (
    id              BIGSERIAL PRIMARY KEY,
    oracle_address  TEXT NOT NULL,
    chain_id        BIGINT NOT NULL,
    type            TEXT NOT NULL,
    severity        TEXT NOT NULL,
    message         TEXT NOT NULL,
    data            JSONB,
    status          TEXT NOT NULL DEFAULT 'pending',
    ts              TIMESTAMPTZ NOT NULL,
    sent_at         TIMESTAMPTZ,
    error           TEXT
);

CREATE INDEX IF NOT EXISTS oracle_alerts_lookup_idx
    ON oracle_alerts (oracle_address, type, ts DESC);
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}
