package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"capowatch/internal/storage"
)

// CooldownCache remembers recently delivered alerts across replicas.
type CooldownCache interface {
	Active(ctx context.Context, oracleAddress string, alertType storage.AlertType) (bool, error)
	Mark(ctx context.Context, oracleAddress string, alertType storage.AlertType, ttl time.Duration) error
}

// RedisCooldown keeps one expiring key per (oracle, type).
type RedisCooldown struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCooldown connects to redisURL and verifies the connection.
func NewRedisCooldown(ctx context.Context, redisURL, password string) (*RedisCooldown, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCooldown{rdb: rdb, prefix: "capowatch:cooldown"}, nil
}

// Close releases the connection.
func (c *RedisCooldown) Close() error {
	return c.rdb.Close()
}

// Active reports whether a key for the pair is still alive.
func (c *RedisCooldown) Active(ctx context.Context, oracleAddress string, alertType storage.AlertType) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(oracleAddress, alertType)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records a delivery that expires after ttl.
func (c *RedisCooldown) Mark(ctx context.Context, oracleAddress string, alertType storage.AlertType, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.key(oracleAddress, alertType), "1", ttl).Err()
}

func (c *RedisCooldown) key(oracleAddress string, alertType storage.AlertType) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, storage.NormalizeAddress(oracleAddress), alertType)
}

var _ CooldownCache = (*RedisCooldown)(nil)
