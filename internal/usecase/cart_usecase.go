package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// price は追加時点の価格
type CartItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total string             `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	VariantID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// カート取得（無ければ作って空を返す）
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newDBError(err)
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// カートに追加（同一バリアントは数量加算）
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, invalidInput("invalid product_id")
	}
	if in.VariantID <= 0 {
		return CartResponse{}, invalidInput("invalid variant_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, invalidInput("invalid quantity")
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound || (err == nil && !p.IsActive) {
		return CartResponse{}, newKindError(http.StatusNotFound, ErrProductNotFound, "product not found")
	}
	if err != nil {
		return CartResponse{}, newDBError(err)
	}
	v, ok := p.FindVariant(in.VariantID)
	if !ok {
		return CartResponse{}, newKindError(http.StatusNotFound, ErrVariantNotFound, "variant not found")
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newDBError(err)
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, newDBError(err)
	}

	var existingQty int64
	for _, it := range items {
		if it.VariantID == in.VariantID {
			existingQty = it.Quantity
			break
		}
	}

	//カートに入れられるのは今の在庫まで（確保はしない）
	if existingQty+in.Quantity > v.Stock {
		return CartResponse{}, &HTTPError{
			Status:  http.StatusConflict,
			Message: "stock exceeded",
			Err: &InsufficientStockError{
				ProductID: p.ID,
				VariantID: v.ID,
				Available: v.Stock,
				Requested: existingQty + in.Quantity,
			},
		}
	}

	// スナップショットは「追加時点」のもの
	if err := u.cartItemRepo.UpsertByCartAndVariant(ctx, model.CartItem{
		CartID:        cart.ID,
		ProductID:     p.ID,
		VariantID:     v.ID,
		Quantity:      in.Quantity,
		NameSnapshot:  p.Name,
		ImageSnapshot: p.Image,
		PriceSnapshot: v.Price,
		SizeSnapshot:  v.Size,
		ColorSnapshot: v.Color,
	}); err != nil {
		return CartResponse{}, newDBError(err)
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック＋在庫チェック）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, invalidInput("invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, invalidInput("invalid quantity")
	}

	item, err := u.findOwnedItem(ctx, userID, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	//バリアントの在庫チェック
	v, err := u.productRepo.FindVariantByID(ctx, item.VariantID)
	if err == repo.ErrNotFound {
		return CartResponse{}, newKindError(http.StatusNotFound, ErrVariantNotFound, "variant not found")
	}
	if err != nil {
		return CartResponse{}, newDBError(err)
	}
	if in.Quantity > v.Stock {
		return CartResponse{}, &HTTPError{
			Status:  http.StatusConflict,
			Message: "stock exceeded",
			Err: &InsufficientStockError{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Available: v.Stock,
				Requested: in.Quantity,
			},
		}
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
		}
		return CartResponse{}, newDBError(err)
	}

	return u.buildCartResponse(ctx, item.CartID)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, invalidInput("invalid id")
	}

	item, err := u.findOwnedItem(ctx, userID, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
		}
		return CartResponse{}, newDBError(err)
	}

	return u.buildCartResponse(ctx, item.CartID)
}

// 他人の明細は404
func (u *CartUsecase) findOwnedItem(ctx context.Context, userID, cartItemID int64) (model.CartItem, error) {
	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return model.CartItem{}, newDBError(err)
	}
	if !owned {
		return model.CartItem{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if err == repo.ErrNotFound {
		return model.CartItem{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	if err != nil {
		return model.CartItem{}, newDBError(err)
	}
	return item, nil
}

// cartIDの明細をまとめてCartResponseを作る。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, newDBError(err)
	}

	respItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		respItems = append(respItems, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.NameSnapshot,
			Image:     it.ImageSnapshot,
			Size:      it.SizeSnapshot,
			Color:     it.ColorSnapshot,
			Price:     it.PriceSnapshot.StringFixed(2),
			Quantity:  it.Quantity,
		})
		total = total.Add(it.LineTotal())
	}

	return CartResponse{Items: respItems, Total: total.StringFixed(2)}, nil
}
