package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// 注文時点のカートの中身
type CartSnapshot struct {
	CartID int64
	UserID int64
	Items  []model.CartItem
}

func ReadCartSnapshot(ctx context.Context, carts repo.CartRepository, items repo.CartItemRepository, userID int64) (CartSnapshot, error) {
	cart, err := carts.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartSnapshot{}, newKindError(http.StatusBadRequest, ErrCartEmpty, "cart empty")
	}
	if err != nil {
		return CartSnapshot{}, newDBError(err)
	}

	cartItems, err := items.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartSnapshot{}, newDBError(err)
	}
	if len(cartItems) == 0 {
		return CartSnapshot{}, newKindError(http.StatusBadRequest, ErrCartEmpty, "cart empty")
	}
	for _, it := range cartItems {
		if it.Quantity < 1 {
			return CartSnapshot{}, invalidInput("invalid cart item quantity")
		}
	}

	return CartSnapshot{CartID: cart.ID, UserID: userID, Items: cartItems}, nil
}

func (s CartSnapshot) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(s.Items))
	for _, it := range s.Items {
		lines = append(lines, StockLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return lines
}

// カートのスナップショットをそのまま注文明細にする
func (s CartSnapshot) OrderItems() []model.OrderItem {
	out := make([]model.OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, model.OrderItem{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			CartItemID:  it.ID,
			Name:        it.NameSnapshot,
			Image:       it.ImageSnapshot,
			Size:        it.SizeSnapshot,
			Color:       it.ColorSnapshot,
			PriceAtTime: it.PriceSnapshot,
			Quantity:    it.Quantity,
		})
	}
	return out
}

func (s CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}
