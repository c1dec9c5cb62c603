package model_test

import (
	"testing"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []model.OrderStatus{
		model.OrderStatusPending,
		model.OrderStatusProcessing,
		model.OrderStatusShipped,
		model.OrderStatusDelivered,
		model.OrderStatusCancelled,
	}
	allowed := map[[2]model.OrderStatus]bool{
		{model.OrderStatusPending, model.OrderStatusProcessing}:   true,
		{model.OrderStatusPending, model.OrderStatusCancelled}:    true,
		{model.OrderStatusProcessing, model.OrderStatusShipped}:   true,
		{model.OrderStatusProcessing, model.OrderStatusCancelled}: true,
		{model.OrderStatusShipped, model.OrderStatusDelivered}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]model.OrderStatus{from, to}]
			assert.Equal(t, want, model.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, model.OrderStatusDelivered.IsTerminal())
	assert.True(t, model.OrderStatusCancelled.IsTerminal())
	assert.False(t, model.OrderStatusPending.IsTerminal())
	assert.False(t, model.OrderStatusProcessing.IsTerminal())
	assert.False(t, model.OrderStatusShipped.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := model.ParseOrderStatus("SHIPPED")
	assert.True(t, ok)
	assert.Equal(t, model.OrderStatusShipped, st)

	_, ok = model.ParseOrderStatus("shipped")
	assert.False(t, ok)
	_, ok = model.ParseOrderStatus("PAID")
	assert.False(t, ok)
	_, ok = model.ParseOrderStatus("")
	assert.False(t, ok)
}

func TestParsePaymentMethod(t *testing.T) {
	for _, s := range []string{"CREDIT_CARD", "PAYPAL", "CASH_ON_DELIVERY"} {
		pm, ok := model.ParsePaymentMethod(s)
		assert.True(t, ok, s)
		assert.Equal(t, model.PaymentMethod(s), pm)
	}

	_, ok := model.ParsePaymentMethod("BITCOIN")
	assert.False(t, ok)
}

func TestCartItem_LineTotal(t *testing.T) {
	it := model.CartItem{PriceSnapshot: decimal.RequireFromString("10.00"), Quantity: 2}
	assert.Equal(t, "20.00", it.LineTotal().StringFixed(2))
}

func TestProduct_FindVariant(t *testing.T) {
	p := model.Product{ID: 1, Variants: []model.Variant{{ID: 10, ProductID: 1}, {ID: 11, ProductID: 1}}}

	v, ok := p.FindVariant(11)
	assert.True(t, ok)
	assert.Equal(t, int64(11), v.ID)

	_, ok = p.FindVariant(12)
	assert.False(t, ok)
}
