package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/promo"
)

// RegisterAdminRoutes wires administrative balance and promo management.
func RegisterAdminRoutes(r fiber.Router, accounts *account.Handler, promos *promo.Handler) {
	r.Post("/admin/balance", accounts.AdminAdjust)
	r.Post("/admin/promo", promos.Create)
	r.Get("/admin/promo", promos.List)
}
