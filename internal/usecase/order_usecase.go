package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// 冪等キーが同時に入ったとき、tx の外で取り直すための目印
var errIdempotencyRace = errors.New("idempotency race")

type OrderUsecase struct {
	tx        repo.TransactionManager
	addresses repo.AddressRepository
	ledger    *StockLedger
	lock      repo.OrderLock
	lockTTL   time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
}

type OrderOption func(*OrderUsecase)

// 同じ冪等キーの同時実行を止めるロック
func WithOrderLock(lock repo.OrderLock, ttl time.Duration) OrderOption {
	return func(u *OrderUsecase) {
		u.lock = lock
		u.lockTTL = ttl
	}
}

func WithOrderLogger(log logrus.FieldLogger) OrderOption {
	return func(u *OrderUsecase) {
		u.log = log
	}
}

func WithOrderClock(now func() time.Time) OrderOption {
	return func(u *OrderUsecase) {
		u.now = now
	}
}

func NewOrderUsecase(tx repo.TransactionManager, addresses repo.AddressRepository, opts ...OrderOption) *OrderUsecase {
	u := &OrderUsecase{
		tx:        tx,
		addresses: addresses,
		lockTTL:   30 * time.Second,
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.ledger = NewStockLedger(u.log)
	return u
}

type PlaceOrderInput struct {
	// どちらか一方。AddressID は保存済みの住所
	ShippingAddress *model.ShippingAddress
	AddressID       int64
	PaymentMethod   string
	IdempotencyKey  string
}

type PlaceOrderResult struct {
	Order OrderOutput
	// 同じ冪等キーの既存注文を返した
	Replayed bool
}

type OrderItemOutput struct {
	ProductID   int64  `json:"product_id"`
	VariantID   int64  `json:"variant_id"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	PriceAtTime string `json:"price_at_time"`
	Quantity    int64  `json:"quantity"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	OrderNumber     int64                 `json:"order_number"`
	UserID          int64                 `json:"user_id"`
	Status          string                `json:"status"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	TotalAmount     string                `json:"total_amount"`
	CreatedAt       time.Time             `json:"created_at"`
	Items           []OrderItemOutput     `json:"items"`
}

func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderResult, error) {
	if userID <= 0 {
		return PlaceOrderResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	log := u.log.WithFields(logrus.Fields{"user_id": userID, "idempotency_key": key})

	shipping, pm, err := u.validatePlaceOrder(ctx, userID, key, in)
	if err != nil {
		u.logRejection(log, err)
		return PlaceOrderResult{}, err
	}

	if u.lock != nil {
		lockKey := fmt.Sprintf("%d:%s", userID, key)
		ok, err := u.lock.Acquire(ctx, lockKey, u.lockTTL)
		if err != nil {
			log.WithError(err).Error("order lock unavailable")
			return PlaceOrderResult{}, &HTTPError{Status: http.StatusServiceUnavailable, Message: "order lock unavailable", Cause: err}
		}
		if !ok {
			err := newKindError(http.StatusConflict, ErrOrderInProgress, "order in progress")
			u.logRejection(log, err)
			return PlaceOrderResult{}, err
		}
		defer func() {
			if err := u.lock.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				log.WithError(err).Warn("order lock release failed")
			}
		}()
	}

	var (
		placed   model.Order
		replayed bool
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//カート行を押さえて、同じカートからの注文を1件ずつにする
		cart, cartErr := r.Carts().LockByUserID(ctx, userID)
		if cartErr != nil && !errors.Is(cartErr, repo.ErrNotFound) {
			return newDBError(cartErr)
		}

		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return newDBError(err)
		}
		if found {
			placed = existing
			replayed = true
			return nil
		}

		//前の注文でまだカートから引いていない分を先に引く
		if cartErr == nil {
			if err := u.consumePendingOrders(ctx, r, cart.ID, userID); err != nil {
				return err
			}
		}

		snapshot, err := ReadCartSnapshot(ctx, r.Carts(), r.CartItems(), userID)
		if err != nil {
			return err
		}

		reservation, err := u.ledger.CheckAndReserve(ctx, r.Inventory(), r.Products(), snapshot.StockLines())
		if err != nil {
			return err
		}

		number, err := NextOrderNumber(ctx, r.Sequences())
		if err != nil {
			u.ledger.release(ctx, reservation)
			return err
		}

		created, err := r.Orders().Create(ctx, model.Order{
			OrderNumber:     number,
			UserID:          userID,
			Status:          model.OrderStatusPending,
			ShippingAddress: shipping,
			PaymentMethod:   pm,
			TotalAmount:     snapshot.Total(),
			IdempotencyKey:  key,
			Items:           snapshot.OrderItems(),
		})
		if err != nil {
			u.ledger.release(ctx, reservation)
			if errors.Is(err, repo.ErrDuplicateIdempotencyKey) {
				return errIdempotencyRace
			}
			return &HTTPError{
				Status:  http.StatusInternalServerError,
				Message: "order could not be saved",
				Err:     ErrPersistenceFailed,
				Cause:   err,
			}
		}
		placed = created
		return nil
	})

	//同時に同じキーが入った。先に入った注文を返す
	if errors.Is(err, errIdempotencyRace) {
		existing, found, ferr := u.findByIdempotencyKey(ctx, userID, key)
		if ferr != nil {
			return PlaceOrderResult{}, ferr
		}
		if !found {
			return PlaceOrderResult{}, newKindError(http.StatusConflict, ErrOrderInProgress, "order in progress")
		}
		placed, replayed, err = existing, true, nil
	}
	if err != nil {
		u.logRejection(log, err)
		return PlaceOrderResult{}, err
	}

	log = log.WithFields(logrus.Fields{"order_id": placed.ID, "order_number": placed.OrderNumber})
	if replayed {
		log.Info("order replayed")
		return PlaceOrderResult{Order: toOrderOutput(placed), Replayed: true}, nil
	}
	log.WithField("total_amount", placed.TotalAmount.StringFixed(2)).Info("order placed")

	//カートのクリアは注文確定後。失敗しても注文は成功のまま
	if err := u.clearCart(ctx, placed); err != nil {
		log.WithError(err).Warn("cart clear failed, left for reconcile-carts")
	}

	return PlaceOrderResult{Order: toOrderOutput(placed)}, nil
}

func (u *OrderUsecase) validatePlaceOrder(ctx context.Context, userID int64, key string, in PlaceOrderInput) (model.ShippingAddress, model.PaymentMethod, error) {
	if len(key) > 255 {
		return model.ShippingAddress{}, "", invalidInput("invalid idempotency_key")
	}

	pm, ok := model.ParsePaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if !ok {
		return model.ShippingAddress{}, "", invalidInput("invalid payment_method")
	}

	switch {
	case in.ShippingAddress != nil && in.AddressID > 0:
		return model.ShippingAddress{}, "", invalidInput("specify either shipping_address or address_id")
	case in.ShippingAddress != nil:
		s := normalizeShipping(*in.ShippingAddress)
		if s.Name == "" || s.PostalCode == "" || s.Prefecture == "" || s.City == "" || s.Line1 == "" {
			return model.ShippingAddress{}, "", invalidInput("invalid shipping_address")
		}
		return s, pm, nil
	case in.AddressID > 0:
		//address_idの存在確認＋所有チェック
		addr, err := u.addresses.FindByID(ctx, in.AddressID)
		if errors.Is(err, repo.ErrNotFound) {
			return model.ShippingAddress{}, "", newKindError(http.StatusNotFound, ErrNotFound, "address not found")
		}
		if err != nil {
			return model.ShippingAddress{}, "", newDBError(err)
		}
		if addr.UserID != userID {
			return model.ShippingAddress{}, "", newKindError(http.StatusForbidden, ErrForbidden, "forbidden")
		}
		return addr.ToShipping(), pm, nil
	default:
		return model.ShippingAddress{}, "", invalidInput("shipping_address required")
	}
}

func normalizeShipping(s model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		Name:       strings.TrimSpace(s.Name),
		Phone:      strings.TrimSpace(s.Phone),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Prefecture: strings.TrimSpace(s.Prefecture),
		City:       strings.TrimSpace(s.City),
		Line1:      strings.TrimSpace(s.Line1),
		Line2:      strings.TrimSpace(s.Line2),
	}
}

func (u *OrderUsecase) findByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var (
		o     model.Order
		found bool
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		o, found, err = r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return newDBError(err)
		}
		return nil
	})
	return o, found, err
}

// 注文した数量をカートから引いて、クリア済みの印を付ける
func (u *OrderUsecase) clearCart(ctx context.Context, o model.Order) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().LockByUserID(ctx, o.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return r.Orders().MarkCartCleared(ctx, o.ID, u.now())
		}
		if err != nil {
			return err
		}

		//ロック待ちの間に次の注文が片付けていることがある
		current, err := r.Orders().FindByID(ctx, o.ID)
		if err != nil {
			return err
		}
		if current.CartClearedAt != nil {
			return nil
		}
		return u.consumeCart(ctx, r, cart.ID, current)
	})
}

func (u *OrderUsecase) consumePendingOrders(ctx context.Context, r repo.TxRepos, cartID, userID int64) error {
	pending, err := r.Orders().ListCartClearPendingByUserID(ctx, userID)
	if err != nil {
		return newDBError(err)
	}
	for _, o := range pending {
		if err := u.consumeCart(ctx, r, cartID, o); err != nil {
			return newDBError(err)
		}
	}
	return nil
}

func (u *OrderUsecase) consumeCart(ctx context.Context, r repo.TxRepos, cartID int64, o model.Order) error {
	used := make([]repo.CartItemUsage, 0, len(o.Items))
	for _, it := range o.Items {
		if it.CartItemID > 0 {
			used = append(used, repo.CartItemUsage{CartItemID: it.CartItemID, Quantity: it.Quantity})
		}
	}
	if err := r.Carts().SubtractItems(ctx, cartID, used); err != nil {
		return err
	}
	return r.Orders().MarkCartCleared(ctx, o.ID, u.now())
}

// カートのクリアに失敗したままの注文をやり直す。クリアできた件数を返す
func (u *OrderUsecase) RetryPendingCartClears(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		pending, err = r.Orders().ListCartClearPending(ctx, u.now().Add(-olderThan), limit)
		if err != nil {
			return newDBError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, o := range pending {
		if err := u.clearCart(ctx, o); err != nil {
			u.log.WithError(err).WithField("order_id", o.ID).Warn("cart clear retry failed")
			continue
		}
		cleared++
	}
	return cleared, nil
}

// 拒否理由をログに残す
func (u *OrderUsecase) logRejection(log logrus.FieldLogger, err error) {
	fields := logrus.Fields{}
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		fields["product_id"] = ise.ProductID
		fields["variant_id"] = ise.VariantID
		fields["available"] = ise.Available
		fields["requested"] = ise.Requested
	}

	he, ok := AsHTTPError(err)
	if !ok {
		log.WithError(err).WithFields(fields).Error("order rejected")
		return
	}
	fields["status"] = he.Status
	if code := he.Code(); code != "" {
		fields["kind"] = code
	}
	if he.Status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(fields).Error("order rejected")
		return
	}
	log.WithFields(fields).Info("order rejected: " + he.Message)
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングでまずは固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return newDBError(err)
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, toOrderOutput(o))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, invalidInput("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		out = toOrderOutput(o)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 顧客からのステータス変更。自分の PENDING 注文のキャンセルだけ
func (u *OrderUsecase) UpdateMyOrderStatus(ctx context.Context, userID int64, orderID int64, status string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, invalidInput("invalid id")
	}
	to, ok := model.ParseOrderStatus(strings.TrimSpace(status))
	if !ok {
		return OrderOutput{}, invalidInput("invalid status")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		if to != model.OrderStatusCancelled {
			return newKindError(http.StatusForbidden, ErrForbidden, "only cancellation is allowed")
		}
		if o.Status != model.OrderStatusPending {
			return newKindError(http.StatusConflict, ErrInvalidTransition, "only pending orders can be cancelled")
		}

		updated, _, err := transitionOrder(ctx, r, o, to)
		if err != nil {
			return err
		}
		out = toOrderOutput(updated)
		return nil
	})
	if err != nil {
		u.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "order_id": orderID}).Info("order status change rejected")
		return OrderOutput{}, err
	}

	u.log.WithFields(logrus.Fields{"user_id": userID, "order_id": orderID}).Info("order cancelled by customer")
	return out, nil
}

// 他人の注文は「存在しない扱い」にする
func findOwnedOrder(ctx context.Context, r repo.TxRepos, userID, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	if err != nil {
		return model.Order{}, newDBError(err)
	}
	if o.UserID != userID {
		return model.Order{}, newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	return o, nil
}

func toOrderOutput(o model.Order) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(o.Items))
	for _, it := range o.Items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			Name:        it.Name,
			Image:       it.Image,
			Size:        it.Size,
			Color:       it.Color,
			PriceAtTime: it.PriceAtTime.StringFixed(2),
			Quantity:    it.Quantity,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		TotalAmount:     o.TotalAmount.StringFixed(2),
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
