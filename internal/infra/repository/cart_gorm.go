package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// carts と cart_items の両方を扱う
type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// ユーザーのカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	//user_idは一意なので、同時作成はON CONFLICTで吸収して取り直す
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		newCart := model.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&newCart).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).First(&cart).Error
	})
	if err != nil {
		return model.Cart{}, errors.Wrapf(err, "get or create cart user=%d", userID)
	}
	return cart, nil
}

// ユーザーのカートを取得
func (r *CartGormRepository) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, errors.Wrapf(err, "find cart user=%d", userID)
	}
	return cart, nil
}

// 注文と並行しないようにカート行をロックして取得
func (r *CartGormRepository) LockByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, errors.Wrapf(err, "lock cart user=%d", userID)
	}
	return cart, nil
}

// 注文した数量だけ引く。注文後に同じバリアントを足した分は残る
func (r *CartGormRepository) SubtractItems(ctx context.Context, cartID int64, used []repo.CartItemUsage) error {
	if len(used) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range used {
			//quantity >= 1 の制約があるので、使い切る明細は先に消す
			res := tx.Where("id = ? AND cart_id = ? AND quantity <= ?", u.CartItemID, cartID, u.Quantity).
				Delete(&model.CartItem{})
			if res.Error != nil {
				return errors.Wrapf(res.Error, "delete cart item id=%d", u.CartItemID)
			}
			if res.RowsAffected > 0 {
				continue
			}

			res = tx.Model(&model.CartItem{}).
				Where("id = ? AND cart_id = ?", u.CartItemID, cartID).
				Update("quantity", gorm.Expr("quantity - ?", u.Quantity))
			if res.Error != nil {
				return errors.Wrapf(res.Error, "subtract cart item id=%d", u.CartItemID)
			}
		}
		return nil
	})
}

// カート明細を一覧取得
func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, errors.Wrapf(err, "list cart items cart=%d", cartID)
	}

	return items, nil
}

// 同一バリアントは数量加算
func (r *CartGormRepository) UpsertByCartAndVariant(ctx context.Context, item model.CartItem) error {
	if item.Quantity <= 0 {
		return errors.New("invalid quantity")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CartItem

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND variant_id = ?", item.CartID, item.VariantID).
			First(&existing).Error

		if err == nil {
			// 既存ありだったら数量を増やす（スナップショットはそのまま）
			res := tx.Model(&model.CartItem{}).
				Where("id = ?", existing.ID).
				Update("quantity", gorm.Expr("quantity + ?", item.Quantity))

			if res.Error != nil {
				return errors.Wrap(res.Error, "increment cart item")
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "find cart item")
		}

		//無い場合は新規作成
		now := time.Now()
		item.ID = 0
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := tx.Create(&item).Error; err != nil {
			return errors.Wrap(err, "create cart item")
		}

		return nil
	})
}

// 明細の数量を更新
func (r *CartGormRepository) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", cartItemID).
		Update("quantity", qty)

	if res.Error != nil {
		return errors.Wrap(res.Error, "update cart item quantity")
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除
func (r *CartGormRepository) DeleteByID(ctx context.Context, cartItemID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.CartItem{}, cartItemID)

	if res.Error != nil {
		return errors.Wrap(res.Error, "delete cart item")
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を取得
func (r *CartGormRepository) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	var item model.CartItem

	err := r.db.WithContext(ctx).
		Where("id = ?", cartItemID).
		First(&item).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, errors.Wrap(err, "find cart item")
	}
	return item, nil
}

//cartItemが、そのuserのカートに属しているかを判定

func (r *CartGormRepository) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Table("cart_items").
		Joins("join carts on carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", cartItemID, userID).
		Count(&count).Error

	if err != nil {
		return false, errors.Wrap(err, "check cart item owner")
	}

	return count > 0, nil
}
