package repository

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

func preloadVariants(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

// 公開商品のみを、検索/価格帯/ソート/ページング付きで返す。
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{})

	// 公開（is_active=true）かつ、商品削除されていないものだけ
	tx = tx.Where("is_active = ?", true)

	// q nameを対象
	if strings.TrimSpace(q.Q) != "" {
		like := "%" + strings.TrimSpace(q.Q) + "%"
		tx = tx.Where("name ILIKE ?", like)
	}

	//価格帯（いずれかのバリアントが範囲に入る商品）
	if q.MinPrice != nil {
		tx = tx.Where("EXISTS (SELECT 1 FROM variants v WHERE v.product_id = products.id AND v.price >= ?)", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("EXISTS (SELECT 1 FROM variants v WHERE v.product_id = products.id AND v.price <= ?)", *q.MaxPrice)
	}

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, errors.Wrap(err, "count products")
	}

	//sort
	switch q.Sort {
	case "name_asc":
		tx = tx.Order("name asc").Order("id asc")
	case "name_desc":
		tx = tx.Order("name desc").Order("id desc")
	default:
		tx = tx.Order("created_at desc").Order("id desc")
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Preload("Variants", preloadVariants).Offset(offset).Limit(q.Limit).Find(&products).Error; err != nil {
		return []model.Product{}, 0, errors.Wrap(err, "list products")
	}

	return products, total, nil
}

// IDで商品を取得（バリアント込み）
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Preload("Variants", preloadVariants).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, errors.Wrapf(err, "find product id=%d", id)
	}
	return p, nil
}

func (r *ProductGormRepository) FindVariantByID(ctx context.Context, variantID int64) (model.Variant, error) {
	var v model.Variant
	err := r.db.WithContext(ctx).First(&v, variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Variant{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Variant{}, errors.Wrapf(err, "find variant id=%d", variantID)
	}
	return v, nil
}

// 商品の作成（バリアントも一緒に作る）
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, errors.Wrap(err, "create product")
	}
	return p, nil
}

// 商品の更新。在庫はここでは変えない（在庫はInventoryRepository経由）
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"image":       p.Image,
			"is_active":   p.IsActive,
		})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update product")
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		for _, v := range p.Variants {
			//新しいバリアントは追加
			if v.ID == 0 {
				v.ProductID = p.ID
				if err := tx.Create(&v).Error; err != nil {
					return errors.Wrap(err, "create variant")
				}
				continue
			}

			res := tx.Model(&model.Variant{}).
				Where("id = ? AND product_id = ?", v.ID, p.ID).
				Updates(map[string]interface{}{
					"sku":   v.SKU,
					"size":  v.Size,
					"color": v.Color,
					"price": v.Price,
				})
			if res.Error != nil {
				return errors.Wrapf(res.Error, "update variant id=%d", v.ID)
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
		}
		return nil
	})
}

// 商品削除
func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete product")
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
