package repository

import (
	"context"
	"time"
)

// 同じ冪等キーの注文が同時に走らないようにするロック
type OrderLock interface {
	// 取れなければ false
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
