package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "seq:"

// INCRで発番する。Txの外なので注文が失敗すると番号は欠番になる
type SequenceRedisRepository struct {
	client *redis.Client
}

func NewSequenceRedisRepository(client *redis.Client) *SequenceRedisRepository {
	return &SequenceRedisRepository{client: client}
}

func (r *SequenceRedisRepository) IncrementAndGet(ctx context.Context, name string) (int64, error) {
	v, err := r.client.Incr(ctx, sequenceKeyPrefix+name).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "incr sequence %q", name)
	}
	return v, nil
}

// 既存データから移行するときの初期値合わせ
func (r *SequenceRedisRepository) SeedAtLeast(ctx context.Context, name string, value int64) error {
	key := sequenceKeyPrefix + name
	if err := seedAtLeastScript.Run(ctx, r.client, []string{key}, value).Err(); err != nil {
		return errors.Wrapf(err, "seed sequence %q", name)
	}
	return nil
}

var seedAtLeastScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local value = tonumber(ARGV[1])
if current < value then
	redis.call('SET', KEYS[1], value)
end
return 1
`)
