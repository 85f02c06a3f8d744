package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rsipulse/internal/config"
)

type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	down   atomic.Bool
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		if !c.down.Swap(true) {
			c.logger.Warn("redis down, using memory fallback", zap.Error(err))
		}
		return err
	}
	if c.down.Swap(false) {
		c.logger.Info("redis recovered")
	}
	return nil
}

// Watch pings on every interval until ctx is done.
func (c *Client) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			_ = c.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *Client) RDB() *redis.Client { return c.rdb }
func (c *Client) IsDown() bool       { return c.down.Load() }
func (c *Client) MarkDown()          { c.down.Store(true) }
func (c *Client) Close() error       { return c.rdb.Close() }
