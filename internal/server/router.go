package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/allosh/allosh-market-service/internal/auth"
	branchH "github.com/allosh/allosh-market-service/internal/branch/handler"
	couponH "github.com/allosh/allosh-market-service/internal/coupon/handler"
	"github.com/allosh/allosh-market-service/internal/httpx"
	invH "github.com/allosh/allosh-market-service/internal/inventory/handler"
	loyaltyH "github.com/allosh/allosh-market-service/internal/loyalty/handler"
	prodH "github.com/allosh/allosh-market-service/internal/product/handler"
	returnH "github.com/allosh/allosh-market-service/internal/returns/handler"
	"github.com/allosh/allosh-market-service/pkg/logger"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Branch    *branchH.BranchHandler
	Inventory *invH.InventoryHandler
	Returns   *returnH.ReturnHandler
	Coupon    *couponH.CouponHandler
	Product   *prodH.ProductHandler
	Loyalty   *loyaltyH.LoyaltyHandler
}

func NewRouter(h Handlers, resp *httpx.Responder, db Pinger, log logger.ZapLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware)
	r.Use(httpx.AccessLog(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			resp.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		resp.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/branches", h.Branch.Routes)
	r.Route("/inventory", h.Inventory.Routes)
	r.Route("/returns", h.Returns.Routes)
	r.Route("/coupons", h.Coupon.Routes)
	r.Route("/admin/coupons", h.Coupon.AdminRoutes)
	r.Route("/products", h.Product.Routes)
	r.Route("/loyalty", h.Loyalty.Routes)

	return r
}
