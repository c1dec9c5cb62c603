package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// 許可する遷移。DELIVERED / CANCELLED は終端
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// from -> to が遷移表にあるか
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentMethodPayPal         PaymentMethod = "PAYPAL"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch pm := PaymentMethod(s); pm {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodCashOnDelivery:
		return pm, true
	}
	return "", false
}

// 注文時点の配送先（住所録が後で変わっても変わらない）
type ShippingAddress struct {
	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	Phone      string `gorm:"type:varchar(30)" json:"phone"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`
	Prefecture string `gorm:"type:varchar(100);not null" json:"prefecture"`
	City       string `gorm:"type:varchar(255);not null" json:"city"`
	Line1      string `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
}

type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     int64           `gorm:"not null;uniqueIndex" json:"order_number"`
	UserID          int64           `gorm:"not null;index;uniqueIndex:ux_orders_user_idempotency" json:"user_id"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `gorm:"type:varchar(30);not null" json:"payment_method"`
	//作成時に一度だけ計算する
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	IdempotencyKey string          `gorm:"type:varchar(255);not null;uniqueIndex:ux_orders_user_idempotency" json:"-"`
	//NULLの間はカートのクリアが終わっていない（reconcile-cartsの対象）
	CartClearedAt *time.Time  `gorm:"index" json:"-"`
	Items         []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt     time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
