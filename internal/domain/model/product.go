package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Image       string         `gorm:"type:varchar(1024)" json:"image"`
	IsActive    bool           `gorm:"not null;default:false" json:"is_active"`
	Variants    []Variant      `gorm:"foreignKey:ProductID" json:"variants"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// サイズ/カラーの組み合わせ。在庫と価格はバリアント単位
type Variant struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64           `gorm:"not null;uniqueIndex:ux_variants_product_size_color" json:"product_id"`
	SKU       string          `gorm:"type:varchar(64)" json:"sku"`
	Size      string          `gorm:"type:varchar(50);not null;uniqueIndex:ux_variants_product_size_color" json:"size"`
	Color     string          `gorm:"type:varchar(50);not null;uniqueIndex:ux_variants_product_size_color" json:"color"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	//0未満にはならない（DBのcheck制約）
	Stock     int64     `gorm:"not null;check:chk_variants_stock_non_negative,stock >= 0" json:"stock"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// productに属するバリアントを探す
func (p Product) FindVariant(variantID int64) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}
