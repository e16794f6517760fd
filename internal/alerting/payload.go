package alerting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field is one labelled line of an alert body.
type Field struct {
	Name  string
	Value string
}

// Payload is the structured context attached to an alert. The set of
// implementations is closed.
type Payload interface {
	Kind() string
	Fields() []Field
	isPayload()
}

// CappedPayload accompanies CAPPED alerts.
type CappedPayload struct {
	Ratio              decimal.Decimal `json:"ratio"`
	MaxRatio           decimal.Decimal `json:"maxRatio"`
	UtilizationPercent decimal.Decimal `json:"utilizationPercent"`
	BlockNumber        uint64          `json:"blockNumber"`
}

// GrowthPayload accompanies RAPID_GROWTH and SLOW_GROWTH alerts.
type GrowthPayload struct {
	Ratio              decimal.Decimal `json:"ratio"`
	SnapshotRatio      decimal.Decimal `json:"snapshotRatio"`
	GrowthRatePercent  decimal.Decimal `json:"growthRatePercent"`
	UtilizationPercent decimal.Decimal `json:"utilizationPercent"`
	MaxYearlyGrowthBps int64           `json:"maxYearlyGrowthBps"`
}

// SpikePayload accompanies PRICE_SPIKE alerts.
type SpikePayload struct {
	OldPrice      decimal.Decimal `json:"oldPrice"`
	NewPrice      decimal.Decimal `json:"newPrice"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	OldTimestamp  time.Time       `json:"oldTimestamp"`
}

// ErrorPayload accompanies ERROR alerts.
type ErrorPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

func (CappedPayload) Kind() string { return "capped" }
func (GrowthPayload) Kind() string { return "growth" }
func (SpikePayload) Kind() string  { return "spike" }
func (ErrorPayload) Kind() string  { return "error" }

func (CappedPayload) isPayload() {}
func (GrowthPayload) isPayload() {}
func (SpikePayload) isPayload()  {}
func (ErrorPayload) isPayload()  {}

// Fields implements Payload.
func (p CappedPayload) Fields() []Field {
	return []Field{
		{"Ratio", formatValue(p.Ratio)},
		{"Max Ratio", formatValue(p.MaxRatio)},
		{"Utilization", formatValue(p.UtilizationPercent) + "%"},
		{"Block", fmt.Sprintf("%d", p.BlockNumber)},
	}
}

// Fields implements Payload.
func (p GrowthPayload) Fields() []Field {
	return []Field{
		{"Ratio", formatValue(p.Ratio)},
		{"Snapshot Ratio", formatValue(p.SnapshotRatio)},
		{"Growth Rate", formatValue(p.GrowthRatePercent) + "%"},
		{"Utilization", formatValue(p.UtilizationPercent) + "%"},
		{"Max Yearly Growth", formatValue(decimal.New(p.MaxYearlyGrowthBps, -2)) + "%"},
	}
}

// Fields implements Payload.
func (p SpikePayload) Fields() []Field {
	return []Field{
		{"Old Price", formatValue(p.OldPrice)},
		{"New Price", formatValue(p.NewPrice)},
		{"Change", formatValue(p.ChangePercent) + "%"},
		{"Since", p.OldTimestamp.UTC().Format(time.RFC3339)},
	}
}

// Fields implements Payload.
func (p ErrorPayload) Fields() []Field {
	return []Field{
		{"Stage", p.Stage},
		{"Error", p.Error},
	}
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serialises p with its kind tag.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// DecodePayload restores a payload written by EncodePayload.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	var (
		p   Payload
		err error
	)
	switch env.Kind {
	case "capped":
		var v CappedPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case "growth":
		var v GrowthPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case "spike":
		var v SpikePayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	case "error":
		var v ErrorPayload
		err = json.Unmarshal(env.Data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return p, nil
}

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	one      = decimal.NewFromInt(1)
)

// formatValue renders large values with an M/K suffix and small fractions
// with four decimals.
func formatValue(v decimal.Decimal) string {
	switch {
	case v.GreaterThan(million):
		return v.Div(million).StringFixed(2) + "M"
	case v.GreaterThan(thousand):
		return v.Div(thousand).StringFixed(2) + "K"
	case v.IsPositive() && v.LessThan(one):
		return v.StringFixed(4)
	default:
		return v.StringFixed(2)
	}
}
