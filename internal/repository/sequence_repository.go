package repository

import "context"

// 連番。同じnameで同じ値を二度返さない
type SequenceRepository interface {
	IncrementAndGet(ctx context.Context, name string) (int64, error)
}
