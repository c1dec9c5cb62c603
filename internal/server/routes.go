package server

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Products      *handler.ProductHandler
	AdminProducts *handler.AdminProductHandler
	Cart          *handler.CartHandler
	Addresses     *handler.AddressHandler
	Orders        *handler.OrderHandler
	AdminOrders   *handler.AdminOrderHandler
	AdminUsers    *handler.AdminUserHandler
	AuditLogs     *handler.AdminAuditLogHandler
}

// 依存先の疎通確認（DB, redis）
type HealthCheck func(ctx context.Context) error

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers, checks map[string]HealthCheck) {
	e.GET("/health", healthHandler(checks))

	h.Products.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Addresses.RegisterRoutes(e, cfg, userRepo)
	h.Orders.RegisterRoutes(e, cfg, userRepo)
	h.AdminOrders.RegisterRoutes(e, cfg, userRepo)
	h.AdminProducts.RegisterRoutes(e, cfg, userRepo)
	h.AdminUsers.RegisterRoutes(e, cfg, userRepo)
	h.AuditLogs.RegisterRoutes(e, cfg, userRepo)
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		return c.JSON(status, map[string]interface{}{
			"status": http.StatusText(status),
			"checks": result,
		})
	}
}
