package usecase

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 操作するユーザー
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// 遷移表に沿ってステータスを変える。changed=false は同じステータスでの no-op
func transitionOrder(ctx context.Context, r repo.TxRepos, o model.Order, to model.OrderStatus) (model.Order, bool, error) {
	if o.Status.IsTerminal() {
		return o, false, newKindError(http.StatusConflict, ErrInvalidTransition,
			fmt.Sprintf("cannot change %s order", o.Status))
	}
	if o.Status == to {
		return o, false, nil
	}
	if !model.CanTransition(o.Status, to) {
		return o, false, newKindError(http.StatusConflict, ErrInvalidTransition,
			fmt.Sprintf("cannot change %s order to %s", o.Status, to))
	}

	//読んだ時点のステータスのままなら更新
	ok, err := r.Orders().UpdateStatusIf(ctx, o.ID, o.Status, to)
	if err != nil {
		return o, false, newDBError(err)
	}
	if !ok {
		return o, false, newKindError(http.StatusConflict, ErrInvalidTransition, "order status changed concurrently")
	}

	// キャンセルなら在庫戻し
	if to == model.OrderStatusCancelled {
		for _, it := range o.Items {
			if err := r.Inventory().IncreaseVariantStock(ctx, it.VariantID, it.Quantity); err != nil {
				return o, false, newDBError(err)
			}
		}
	}

	o.Status = to
	return o, true, nil
}
