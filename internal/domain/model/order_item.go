package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 購入時点のスナップショット。商品側が変わってもここは変えない
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	VariantID   int64           `gorm:"not null;index" json:"variant_id"`
	CartItemID  int64           `gorm:"not null" json:"-"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Image       string          `gorm:"type:varchar(1024)" json:"image"`
	Size        string          `gorm:"type:varchar(50)" json:"size"`
	Color       string          `gorm:"type:varchar(50)" json:"color"`
	PriceAtTime decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_at_time"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
