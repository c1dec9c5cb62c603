package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 在庫台帳。stockの更新は必ずこの条件付き操作を通す
type InventoryRepository interface {
	// 在庫の現在値を設定（管理者）
	SetVariantStock(ctx context.Context, variantID int64, newStock int64) error

	// 在庫が足りるときだけ減算。足りなければ false
	DecreaseVariantStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセル・補償）
	IncreaseVariantStock(ctx context.Context, variantID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
