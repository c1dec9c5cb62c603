package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const orderLockKeyPrefix = "order:lock:"

// 自分が取ったロックだけ消す
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type OrderLockRedis struct {
	client *redis.Client
	// key -> このプロセスが書いたトークン
	tokens sync.Map
}

func NewOrderLockRedis(client *redis.Client) *OrderLockRedis {
	return &OrderLockRedis{client: client}
}

func (l *OrderLockRedis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, orderLockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "acquire order lock")
	}
	if ok {
		l.tokens.Store(key, token)
	}
	return ok, nil
}

func (l *OrderLockRedis) Release(ctx context.Context, key string) error {
	v, ok := l.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}
	if err := releaseLockScript.Run(ctx, l.client, []string{orderLockKeyPrefix + key}, v.(string)).Err(); err != nil {
		return errors.Wrap(err, "release order lock")
	}
	return nil
}
