package usecase

import (
	"context"
	"net/http"

	repo "storefront/internal/repository"
)

// 注文番号の採番に使うカウンター名
const OrderSequenceName = "orderId"

// 次の注文番号。採番できなければ 503
func NextOrderNumber(ctx context.Context, seqs repo.SequenceRepository) (int64, error) {
	if seqs == nil {
		return 0, newKindError(http.StatusServiceUnavailable, ErrSequenceUnavailable, "order number unavailable")
	}
	n, err := seqs.IncrementAndGet(ctx, OrderSequenceName)
	if err != nil {
		return 0, &HTTPError{
			Status:  http.StatusServiceUnavailable,
			Message: "order number unavailable",
			Err:     ErrSequenceUnavailable,
			Cause:   err,
		}
	}
	if n <= 0 {
		return 0, newKindError(http.StatusServiceUnavailable, ErrSequenceUnavailable, "order number unavailable")
	}
	return n, nil
}
