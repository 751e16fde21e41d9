package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/reconcile"
)

// RegisterWebhookRoutes wires the payment gateway callback endpoint.
func RegisterWebhookRoutes(r fiber.Router, h *reconcile.Handler) {
	r.Post("/payments/webhook", h.Webhook)
}
