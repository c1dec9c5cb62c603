package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// 前の文が失敗して tx が使えなくなった。rollback で元に戻る
var ErrTxAborted = errors.New("transaction aborted")

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	// バリアント込みで取得
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindVariantByID(ctx context.Context, variantID int64) (model.Variant, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
