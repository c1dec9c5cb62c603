package db

import (
	"context"

	"storefront/internal/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// REDIS_ADDR が空なら nil を返す（redisなしで動かす）
func ConnectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}
