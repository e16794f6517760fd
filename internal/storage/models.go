package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Oracle is a discovered capped growth-rate adapter.
type Oracle struct {
	Address              string
	ChainID              uint64
	Network              string
	Description          string
	RatioProvider        string
	BaseAggregator       string
	AssetAddress         string
	MaxYearlyGrowthBps   int64
	SnapshotRatio        decimal.Decimal
	SnapshotTimestamp    int64
	MinimumSnapshotDelay int64
	Decimals             int
	Manager              string
	IsActive             bool
	DiscoveredAt         time.Time
	UpdatedAt            time.Time
}

// SnapshotMetadata carries the derived values stored next to the raw reads.
type SnapshotMetadata struct {
	MaxRatio           decimal.Decimal `json:"maxRatio"`
	UtilizationPercent decimal.Decimal `json:"utilizationPercent"`
	OnChainTimestamp   int64           `json:"timestamp"`
	ComputedCapped     bool            `json:"computedCapped"`
}

// Snapshot is one poll of one oracle.
type Snapshot struct {
	ID                 int64
	OracleAddress      string
	OracleName         string
	ChainID            uint64
	Ratio              decimal.Decimal
	Price              decimal.Decimal
	SnapshotRatio      decimal.Decimal
	SnapshotTimestamp  int64
	MaxYearlyGrowthBps int64
	IsCapped           bool
	CurrentGrowthRate  decimal.Decimal
	BlockNumber        uint64
	Metadata           SnapshotMetadata
	Timestamp          time.Time
}

// DailyAggregation rolls up one UTC day of snapshots for one oracle.
type DailyAggregation struct {
	OracleAddress string
	OracleName    string
	ChainID       uint64
	Date          time.Time
	AvgRatio      decimal.Decimal
	MinRatio      decimal.Decimal
	MaxRatio      decimal.Decimal
	AvgPrice      decimal.Decimal
	MinPrice      decimal.Decimal
	MaxPrice      decimal.Decimal
	Cap           *decimal.Decimal
	CappedCount   int
	TotalCount    int
	CreatedAt     time.Time
}

// AlertType enumerates raised conditions.
type AlertType string

const (
	AlertCapped      AlertType = "CAPPED"
	AlertRapidGrowth AlertType = "RAPID_GROWTH"
	AlertSlowGrowth  AlertType = "SLOW_GROWTH"
	AlertPriceSpike  AlertType = "PRICE_SPIKE"
	AlertError       AlertType = "ERROR"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus tracks dispatch progress.
type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
)

// Alert is a persisted alert instance.
type Alert struct {
	ID            int64
	OracleAddress string
	ChainID       uint64
	Type          AlertType
	Severity      Severity
	Message       string
	Data          json.RawMessage
	Status        AlertStatus
	Timestamp     time.Time
	SentAt        *time.Time
	Error         *string
}

// AggregationFilter narrows ListDailyAggregations. Empty fields match all.
type AggregationFilter struct {
	OracleAddress string
	AssetID       string
}
