package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫の現在値を設定
func (r *InventoryGormRepository) SetVariantStock(ctx context.Context, variantID int64, newStock int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Variant{}).
		Where("id = ?", variantID).
		Update("stock", newStock)

	if res.Error != nil {
		return errors.Wrapf(res.Error, "set stock variant=%d", variantID)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 在庫が足りるときだけ減らす。読んでから書くのではなく1文の条件付きUPDATE
func (r *InventoryGormRepository) DecreaseVariantStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Variant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "decrease stock variant=%d", variantID)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（キャンセル・補償）
func (r *InventoryGormRepository) IncreaseVariantStock(ctx context.Context, variantID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Variant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", qty))

	if isTxAborted(res.Error) {
		return repo.ErrTxAborted
	}
	if res.Error != nil {
		return errors.Wrapf(res.Error, "increase stock variant=%d", variantID)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return errors.Wrap(err, "create adjustment")
	}
	return nil
}
