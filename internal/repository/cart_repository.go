package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// tx が終わるまでカート行を押さえる（SELECT ... FOR UPDATE）
	LockByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// 注文に入った数量だけ明細から引く。0以下になった明細は消す
	SubtractItems(ctx context.Context, cartID int64, used []CartItemUsage) error
}

// 注文に入ったカート明細と数量
type CartItemUsage struct {
	CartItemID int64
	Quantity   int64
}
