package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細
// 追加時点の価格・商品名・画像・サイズ・カラーを必ず保存。
type CartItem struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID        int64           `gorm:"not null;uniqueIndex:ux_cart_items_cart_variant" json:"cart_id"`
	ProductID     int64           `gorm:"not null;index" json:"product_id"`
	VariantID     int64           `gorm:"not null;uniqueIndex:ux_cart_items_cart_variant" json:"variant_id"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
	NameSnapshot  string          `gorm:"type:varchar(255);not null" json:"name"`
	ImageSnapshot string          `gorm:"type:varchar(1024)" json:"image"`
	PriceSnapshot decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	SizeSnapshot  string          `gorm:"type:varchar(50)" json:"size"`
	ColorSnapshot string          `gorm:"type:varchar(50)" json:"color"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (it CartItem) LineTotal() decimal.Decimal {
	return it.PriceSnapshot.Mul(decimal.NewFromInt(it.Quantity))
}
