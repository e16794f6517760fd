package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capowatch/internal/storage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, n Notifier, cache CooldownCache) (*Service, *storage.Memory, *clock) {
	t.Helper()
	mem := storage.NewMemory()
	clk := &clock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	var notifiers []Notifier
	if n != nil {
		notifiers = append(notifiers, n)
	}
	svc := NewService(mem, notifiers, cache, Options{Cooldown: time.Minute, Now: clk.Now}, zerolog.Nop())
	return svc, mem, clk
}

func cappedRequest() Request {
	return Request{
		OracleAddress: "0xABC",
		OracleName:    "Capped wstETH / USD",
		ChainID:       1,
		Type:          storage.AlertCapped,
		Severity:      storage.SeverityWarning,
		Message:       "ratio is capped",
		Payload: CappedPayload{
			Ratio:              decimal.NewFromInt(1_200_000),
			MaxRatio:           decimal.NewFromInt(1_150_000),
			UtilizationPercent: decimal.NewFromInt(133),
			BlockNumber:        100,
		},
	}
}

func TestCreateAlertSendsAndMarksSent(t *testing.T) {
	rec := &recordingNotifier{}
	svc, mem, _ := newTestService(t, rec, nil)

	alert, err := svc.CreateAlert(context.Background(), cappedRequest())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, storage.AlertSent, alert.Status)
	assert.NotNil(t, alert.SentAt)
	assert.Equal(t, 1, rec.count())

	stored, _ := mem.ListRecentAlerts(context.Background(), 10)
	require.Len(t, stored, 1)
	assert.Equal(t, storage.AlertSent, stored[0].Status)
	assert.Equal(t, "0xabc", stored[0].OracleAddress)

	payload, err := DecodePayload(stored[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "capped", payload.Kind())
}

func TestCreateAlertCooldown(t *testing.T) {
	rec := &recordingNotifier{}
	svc, _, clk := newTestService(t, rec, nil)
	ctx := context.Background()

	first, err := svc.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	require.NotNil(t, first)

	clk.now = clk.now.Add(30 * time.Second)
	second, err := svc.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	assert.Nil(t, second, "alert inside the cooldown must be suppressed")

	other := cappedRequest()
	other.Type = storage.AlertRapidGrowth
	third, err := svc.CreateAlert(ctx, other)
	require.NoError(t, err)
	assert.NotNil(t, third, "cooldown is per alert type")

	clk.now = clk.now.Add(31 * time.Second)
	fourth, err := svc.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	assert.NotNil(t, fourth, "alert after the cooldown must be raised")
	assert.Equal(t, 3, rec.count())
}

func TestCreateAlertInfoIsNotDispatched(t *testing.T) {
	rec := &recordingNotifier{}
	svc, _, clk := newTestService(t, rec, nil)
	ctx := context.Background()

	req := Request{OracleAddress: "0xabc", ChainID: 1, Type: storage.AlertSlowGrowth, Severity: storage.SeverityInfo, Message: "slow",
		Payload: GrowthPayload{GrowthRatePercent: decimal.NewFromFloat(0.5), UtilizationPercent: decimal.NewFromInt(5)}}
	alert, err := svc.CreateAlert(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, storage.AlertPending, alert.Status)
	assert.Zero(t, rec.count())

	clk.now = clk.now.Add(10 * time.Second)
	again, err := svc.CreateAlert(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, again, "pending info alerts count as delivered")
}

func TestCreateAlertDispatchFailureIsRecorded(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("telegram down")}
	svc, mem, clk := newTestService(t, rec, nil)
	ctx := context.Background()

	alert, err := svc.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, storage.AlertFailed, alert.Status)
	require.NotNil(t, alert.Error)
	assert.Contains(t, *alert.Error, "telegram down")

	// failed alerts are not delivered, so the next one is attempted again
	clk.now = clk.now.Add(5 * time.Second)
	retry, err := svc.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	assert.NotNil(t, retry)

	stored, _ := mem.ListRecentAlerts(ctx, 10)
	assert.Len(t, stored, 2)
}

func TestCreateAlertWithoutCooldown(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewService(mem, nil, nil, Options{}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		alert, err := svc.CreateAlert(ctx, cappedRequest())
		require.NoError(t, err)
		require.NotNil(t, alert)
	}
	stored, _ := mem.ListRecentAlerts(ctx, 0)
	assert.Len(t, stored, 3)
}

func TestRender(t *testing.T) {
	note := Render(cappedRequest())
	assert.Equal(t, "[WARNING] CAPPED Capped wstETH / USD", note.Subject)
	assert.Equal(t, "[WARNING] CAPPED\n"+
		"Oracle: Capped wstETH / USD (0xabc)\n"+
		"Chain: 1\n"+
		"ratio is capped\n"+
		"Ratio: 1.20M\n"+
		"Max Ratio: 1.15M\n"+
		"Utilization: 133.00%\n"+
		"Block: 100", note.Body)
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2500000", "2.50M"},
		{"1000000", "1000.00K"},
		{"1500", "1.50K"},
		{"1000", "1000.00"},
		{"0.123456", "0.1235"},
		{"0", "0.00"},
		{"-3.5", "-3.50"},
		{"42.1", "42.10"},
	}
	for _, tc := range cases {
		got := formatValue(decimal.RequireFromString(tc.in))
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestPayloadRoundTripKinds(t *testing.T) {
	payloads := []Payload{
		CappedPayload{Ratio: decimal.NewFromInt(1)},
		GrowthPayload{MaxYearlyGrowthBps: 500},
		SpikePayload{ChangePercent: decimal.NewFromInt(15), OldTimestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		ErrorPayload{Stage: "read_state", Error: "timeout"},
	}
	for _, p := range payloads {
		raw, err := EncodePayload(p)
		require.NoError(t, err)
		back, err := DecodePayload(raw)
		require.NoError(t, err)
		assert.Equal(t, p.Kind(), back.Kind())
		assert.Equal(t, p.Fields(), back.Fields())
	}

	_, err := DecodePayload([]byte(`{"kind":"other","data":{}}`))
	assert.Error(t, err)
}
