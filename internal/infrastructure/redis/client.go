package redis

import (
	"context"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/internal/config"
)

// NewClient dials Redis for the session store and fails fast when the
// server does not answer a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (goRedis.UniversalClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := goRedis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}

// Ping reports whether the client can reach the server. Used by the monitor.
func Ping(client goRedis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
