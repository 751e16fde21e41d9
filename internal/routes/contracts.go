package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/payment"
)

// RegisterContractRoutes wires the two ways of paying for an analysis.
func RegisterContractRoutes(r fiber.Router, h *payment.Handler) {
	r.Post("/contracts/:contractId/pay", h.PayByCard)
	r.Post("/contracts/:contractId/pay-from-balance", h.PayFromBalance)
}
