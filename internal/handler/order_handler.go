package handler

import (
	"context"
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const headerIdempotencyKey = "X-Idempotency-Key"

// *usecase.OrderUsecase が満たす
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, in usecase.PlaceOrderInput) (usecase.PlaceOrderResult, error)
	ListMyOrders(ctx context.Context, userID int64) ([]usecase.OrderOutput, error)
	GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (usecase.OrderOutput, error)
	UpdateMyOrderStatus(ctx context.Context, userID int64, orderID int64, status string) (usecase.OrderOutput, error)
}

type OrderHandler struct {
	uc      OrderService
	adminUC AdminOrderService
}

func NewOrderHandler(uc OrderService, adminUC AdminOrderService) *OrderHandler {
	return &OrderHandler{uc: uc, adminUC: adminUC}
}

// shipping_address か address_id のどちらか
type OrderCreateRequest struct {
	ShippingAddress *model.ShippingAddress `json:"shipping_address"`
	AddressID       int64                  `json:"address_id"`
	PaymentMethod   string                 `json:"payment_method"`
}

type OrderResponse struct {
	Success bool                `json:"success"`
	Order   usecase.OrderOutput `json:"order"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.PUT("/:id", h.updateStatus)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get(headerIdempotencyKey)

	res, err := h.uc.PlaceOrder(c.Request().Context(), userID, usecase.PlaceOrderInput{
		ShippingAddress: req.ShippingAddress,
		AddressID:       req.AddressID,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	//同じキーの再送は既存注文を200で返す
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, OrderResponse{Success: true, Order: res.Order})
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrderDetail(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 管理者は遷移表の範囲で自由に、顧客は自分のPENDING注文のキャンセルだけ
func (h *OrderHandler) updateStatus(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req OrderStatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	actor := usecase.Actor{UserID: userID, Role: getRoleFromContext(c)}

	var out usecase.OrderOutput
	if actor.IsAdmin() {
		out, err = h.adminUC.UpdateStatus(c.Request().Context(), actor.UserID, id, usecase.AdminUpdateOrderStatusInput{Status: req.Status})
	} else {
		out, err = h.uc.UpdateMyOrderStatus(c.Request().Context(), actor.UserID, id, req.Status)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, OrderResponse{Success: true, Order: out})
}
