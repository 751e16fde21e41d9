package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/payment"
)

// RegisterWalletRoutes wires wallet read endpoints and topups.
func RegisterWalletRoutes(r fiber.Router, accounts *account.Handler, payments *payment.Handler) {
	r.Get("/balance", accounts.Balance)
	r.Get("/transactions", accounts.Transactions)
	r.Post("/wallet/topup", payments.Topup)
	r.Get("/payments/:orderId", payments.Status)
}
