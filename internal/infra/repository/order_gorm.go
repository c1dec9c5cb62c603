package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation         = "23505"
	pgInFailedTransaction     = "25P02"
	orderIdempotencyIndexName = "ux_orders_user_idempotency"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("id = ?", orderID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, errors.Wrapf(err, "find order id=%d", orderID)
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, errors.Wrap(err, "count orders")
	}

	var items []model.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, errors.Wrap(err, "list orders")
	}

	return items, total, nil
}

// orders と order_items を同時に作る（gormのassociation保存）
func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		if isUniqueViolation(err, orderIdempotencyIndexName) {
			return model.Order{}, repo.ErrDuplicateIdempotencyKey
		}
		return model.Order{}, errors.Wrap(err, "create order")
	}
	return order, nil
}

func (r *OrderGormRepository) UpdateStatusIf(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})

	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "update order status id=%d", orderID)
	}
	return res.RowsAffected > 0, nil
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, errors.Wrap(err, "find order by idempotency key")
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	//user_id 絞り込み
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, errors.Wrap(err, "count admin orders")
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Order("id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, errors.Wrap(err, "list admin orders")
	}

	return items, total, nil
}

func (r *OrderGormRepository) MarkCartCleared(ctx context.Context, orderID int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("cart_cleared_at", at)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "mark cart cleared id=%d", orderID)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) ListCartClearPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("cart_cleared_at IS NULL AND created_at < ?", createdBefore).
		Order("id asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "list cart clear pending")
	}
	return orders, nil
}

// 注文時に同じユーザーの未クリア分を先に片付けるため
func (r *OrderGormRepository) ListCartClearPendingByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND cart_cleared_at IS NULL", userID).
		Order("id asc").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list cart clear pending user=%d", userID)
	}
	return orders, nil
}

// redis発番に切り替えるときの初期値
func (r *OrderGormRepository) MaxOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "max order number")
	}
	return n, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// 25P02: 同じ tx の前の文が失敗している
func isTxAborted(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgInFailedTransaction
}
