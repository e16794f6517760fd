package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capowatch/internal/storage"
)

func setupTestCooldown(t *testing.T) (*RedisCooldown, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	c, err := NewRedisCooldown(context.Background(), "redis://"+mr.Addr(), "")
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedisCooldown: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c, mr
}

func TestRedisCooldownExpires(t *testing.T) {
	c, mr := setupTestCooldown(t)
	ctx := context.Background()

	active, err := c.Active(ctx, "0xAbC", storage.AlertCapped)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, c.Mark(ctx, "0xabc", storage.AlertCapped, time.Minute))
	active, err = c.Active(ctx, "0xABC", storage.AlertCapped)
	require.NoError(t, err)
	assert.True(t, active)

	other, err := c.Active(ctx, "0xabc", storage.AlertPriceSpike)
	require.NoError(t, err)
	assert.False(t, other)

	mr.FastForward(61 * time.Second)
	active, err = c.Active(ctx, "0xabc", storage.AlertCapped)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestServiceUsesCooldownCache(t *testing.T) {
	c, _ := setupTestCooldown(t)
	ctx := context.Background()

	// two services share redis but not a store, as two replicas would
	rec := &recordingNotifier{}
	first := NewService(storage.NewMemory(), []Notifier{rec}, c, Options{Cooldown: time.Minute}, zerolog.Nop())
	second := NewService(storage.NewMemory(), []Notifier{rec}, c, Options{Cooldown: time.Minute}, zerolog.Nop())

	a, err := first.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	require.NotNil(t, a)

	b, err := second.CreateAlert(ctx, cappedRequest())
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, 1, rec.count())
}

func TestNewRedisCooldownBadURL(t *testing.T) {
	_, err := NewRedisCooldown(context.Background(), "not a url", "")
	assert.Error(t, err)
}
