package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
)

// (user_id, idempotency_key) の一意制約に当たった
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	// 明細込みで取得
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	// 明細も一緒に保存する。IDが埋まったorderを返す
	Create(ctx context.Context, order model.Order) (model.Order, error)
	// 現在のステータスが from のときだけ更新
	UpdateStatusIf(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	MarkCartCleared(ctx context.Context, orderID int64, at time.Time) error
	// カートのクリアが終わっていない注文
	ListCartClearPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error)
	ListCartClearPendingByUserID(ctx context.Context, userID int64) ([]model.Order, error)
}
