package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
	log         logrus.FieldLogger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	tx repo.TransactionManager,
	log logrus.FieldLogger,
) *ProductUsecase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProductUsecase{
		productRepo: productRepo,
		tx:          tx,
		log:         log,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, invalidInput("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, invalidInput("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, invalidInput("q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, invalidInput("min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, invalidInput("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, invalidInput("min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "name_asc", "name_desc":
	default:
		return ProductListOutput{}, invalidInput("invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, newDBError(err)
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, invalidInput("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, newKindError(http.StatusNotFound, ErrProductNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, newDBError(err)
	}

	if !p.IsActive {
		return model.Product{}, newKindError(http.StatusNotFound, ErrProductNotFound, "not found")
	}
	return p, nil
}

type AdminVariantInput struct {
	ID    int64
	SKU   string
	Size  string
	Color string
	Price decimal.Decimal
	// 作成時だけ使う。更新後の在庫は inventory で変える
	Stock int64
}

type AdminProductInput struct {
	Name        string
	Description string
	Image       string
	IsActive    bool
	Variants    []AdminVariantInput
}

func validateProductInput(in AdminProductInput, creating bool) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalidInput("name required")
	}
	if creating && len(in.Variants) == 0 {
		return invalidInput("variants required")
	}
	seen := make(map[string]struct{}, len(in.Variants))
	for _, v := range in.Variants {
		if strings.TrimSpace(v.Size) == "" || strings.TrimSpace(v.Color) == "" {
			return invalidInput("variant size and color required")
		}
		if v.Price.IsNegative() {
			return invalidInput("price must be >= 0")
		}
		if v.Stock < 0 {
			return invalidInput("stock must be >= 0")
		}
		key := strings.TrimSpace(v.Size) + "/" + strings.TrimSpace(v.Color)
		if _, dup := seen[key]; dup {
			return invalidInput("duplicate variant " + key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func toVariants(in []AdminVariantInput) []model.Variant {
	out := make([]model.Variant, 0, len(in))
	for _, v := range in {
		out = append(out, model.Variant{
			ID:    v.ID,
			SKU:   strings.TrimSpace(v.SKU),
			Size:  strings.TrimSpace(v.Size),
			Color: strings.TrimSpace(v.Color),
			Price: v.Price,
			Stock: v.Stock,
		})
	}
	return out
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateProductInput(in, true); err != nil {
		return model.Product{}, err
	}

	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Image:       strings.TrimSpace(in.Image),
		IsActive:    in.IsActive,
		Variants:    toVariants(in.Variants),
	})
	if err != nil {
		return model.Product{}, newDBError(err)
	}
	u.log.WithFields(logrus.Fields{"admin_id": adminUserID, "product_id": p.ID}).Info("product created")
	return p, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return invalidInput("invalid product id")
	}
	if err := validateProductInput(in, false); err != nil {
		return err
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:          productID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Image:       strings.TrimSpace(in.Image),
		IsActive:    in.IsActive,
		Variants:    toVariants(in.Variants),
	})
	if err == repo.ErrNotFound {
		return newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	if err != nil {
		return newDBError(err)
	}
	return nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return invalidInput("invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if err == repo.ErrNotFound {
		return newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	if err != nil {
		return newDBError(err)
	}
	return nil
}

// バリアントの在庫を上書きして、差分を履歴に残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, variantID int64, newStock int64, reason string) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if variantID <= 0 {
		return invalidInput("invalid variant id")
	}
	if newStock < 0 {
		return invalidInput("stock must be >= 0")
	}
	if strings.TrimSpace(reason) == "" {
		return invalidInput("reason required")
	}

	var before int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		v, err := r.Products().FindVariantByID(ctx, variantID)
		if err == repo.ErrNotFound {
			return newKindError(http.StatusNotFound, ErrVariantNotFound, "not found")
		}
		if err != nil {
			return newDBError(err)
		}
		before = v.Stock

		//在庫の現在値を更新
		if err := r.Inventory().SetVariantStock(ctx, variantID, newStock); err != nil {
			if err == repo.ErrNotFound {
				return newKindError(http.StatusNotFound, ErrVariantNotFound, "not found")
			}
			return newDBError(err)
		}

		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			VariantID:   variantID,
			AdminUserID: adminUserID,
			Delta:       newStock - before,
			Reason:      strings.TrimSpace(reason),
		}); err != nil {
			return newDBError(err)
		}

		//監査ログを作成（在庫更新）
		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		beforeJSON, _ := json.Marshal(map[string]int64{"stock": before})
		afterJSON, _ := json.Marshal(map[string]int64{"stock": newStock})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceVariant,
			ResourceID:   variantID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    time.Now(),
		}); err != nil {
			return newDBError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.log.WithFields(logrus.Fields{"admin_id": adminUserID, "variant_id": variantID, "before": before, "after": newStock}).Info("stock updated")
	return nil
}
