package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/promo"
)

// RegisterPromoRoutes wires promo code validation and redemption.
func RegisterPromoRoutes(r fiber.Router, h *promo.Handler) {
	r.Post("/promo/check", h.Check)
	r.Post("/promo/apply", h.Apply)
}
