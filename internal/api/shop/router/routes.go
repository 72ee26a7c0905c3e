// Package router đăng ký các route thuộc domain Shop: listing, vòng đời thanh toán, gia hạn, xoá và đối soát ledger.
package router

import (
	"github.com/gofiber/fiber/v3"

	"rupiya_directory/internal/api/middleware"
	apirouter "rupiya_directory/internal/api/router"
	shophdl "rupiya_directory/internal/api/shop/handler"
)

// Register trả về RegisterFunc gắn các route shop lên v1.
// Actor đọc từ header bởi ActorMiddleware (đăng ký ở tầng app); /renewals cần actor,
// /agents /ledger /revenue chỉ cho admin/system. Các route /shops để service tự kiểm tra quyền.
func Register(h *shophdl.ShopHandler) apirouter.RegisterFunc {
	return func(v1 fiber.Router, r *apirouter.Router) error {
		actorOnly := middleware.RequireActor(false)
		privileged := middleware.RequireActor(true)

		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "GET", "/", nil, h.HandleList)
		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "GET", "/nearest", nil, h.HandleNearest)
		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "POST", "/", nil, h.HandleCreate)
		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "POST", "/delete-many", nil, h.HandleDeleteMany)
		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "POST", "/:origin/:id/mark-paid", nil, h.HandleMarkPaid)
		apirouter.RegisterRouteWithMiddleware(v1, "/shops", "POST", "/:origin/:id/visit", nil, h.HandleVisit)

		apirouter.RegisterRouteWithMiddleware(v1, "/renewals", "GET", "/", []fiber.Handler{actorOnly}, h.HandleListRenewals)
		apirouter.RegisterRouteWithMiddleware(v1, "/renewals", "POST", "/sweep", []fiber.Handler{actorOnly}, h.HandleSweep)
		apirouter.RegisterRouteWithMiddleware(v1, "/renewals", "GET", "/:id/can-renew", []fiber.Handler{actorOnly}, h.HandleCanRenew)
		apirouter.RegisterRouteWithMiddleware(v1, "/renewals", "POST", "/:id/renew", []fiber.Handler{actorOnly}, h.HandleRenew)

		apirouter.RegisterRouteWithMiddleware(v1, "/agents", "POST", "/recompute-all", []fiber.Handler{privileged}, h.HandleRecomputeAll)
		apirouter.RegisterRouteWithMiddleware(v1, "/agents", "POST", "/:id/recompute", []fiber.Handler{privileged}, h.HandleRecomputeAgent)
		apirouter.RegisterRouteWithMiddleware(v1, "/ledger", "POST", "/deduct", []fiber.Handler{privileged}, h.HandleDeduct)
		apirouter.RegisterRouteWithMiddleware(v1, "/ledger", "POST", "/reconcile", []fiber.Handler{privileged}, h.HandleReconcile)
		apirouter.RegisterRouteWithMiddleware(v1, "/revenue", "POST", "/recompute", []fiber.Handler{privileged}, h.HandleRecomputeRevenue)
		return nil
	}
}
