// Package redis owns the shared Redis connection used by the job queue
// and the realtime relay bridge.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client embeds the go-redis client; callers use it directly while this
// wrapper owns connection setup.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient dials Redis and pings it so an unreachable server fails at
// startup rather than on first use.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dial redis %s: %w", addr, err)
	}

	logger.Info("redis connected", zap.String("addr", addr), zap.Int("db", db))
	return &Client{Client: rdb, logger: logger}, nil
}
