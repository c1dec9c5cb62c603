package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type SequenceGormRepository struct {
	db *gorm.DB
}

func NewSequenceGormRepository(db *gorm.DB) *SequenceGormRepository {
	return &SequenceGormRepository{db: db}
}

// 行が無ければ1で作成、あれば+1して返す。
// Tx内で呼ぶと行ロックがcommitまで残るので発番順=commit順になる
func (r *SequenceGormRepository) IncrementAndGet(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		 RETURNING value`, name,
	).Scan(&value).Error
	if err != nil {
		return 0, errors.Wrapf(err, "increment sequence %q", name)
	}
	return value, nil
}
