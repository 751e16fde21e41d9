package payment

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/gateway"
	"github.com/imyrist/billing/internal/ledger"
)

// Handler exposes payment HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type topupRequest struct {
	Amount int64 `json:"amount"`
}

// Topup creates a deposit payment for the authenticated account.
func (h *Handler) Topup(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	email, _ := c.Locals("account_email").(string)

	var req topupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Topup(c.UserContext(), TopupInput{
		AccountID: accountID,
		Email:     email,
		Amount:    req.Amount,
	})
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			return fiber.NewError(http.StatusBadGateway, gwErr.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if res.TestMode {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"success":     true,
			"test_mode":   true,
			"order_id":    res.OrderID,
			"bonus":       res.Bonus,
			"new_balance": res.NewBalance,
		})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":     true,
		"order_id":    res.OrderID,
		"payment_url": res.PaymentURL,
		"payment_id":  res.GatewayPaymentID,
		"bonus":       res.Bonus,
	})
}

// PayByCard opens a card payment for a contract analysis.
func (h *Handler) PayByCard(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	email, _ := c.Locals("account_email").(string)
	contractID := c.Params("contractId")

	res, err := h.service.CreateAnalysisPayment(c.UserContext(), AnalysisInput{
		AccountID:  accountID,
		Email:      email,
		ContractID: contractID,
	})
	if err != nil {
		switch {
		case errors.Is(err, contract.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "contract not found")
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrContractProcessed):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) {
				return fiber.NewError(http.StatusBadGateway, gwErr.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":     true,
		"order_id":    res.OrderID,
		"payment_url": res.PaymentURL,
		"payment_id":  res.GatewayPaymentID,
		"price":       res.Price,
	})
}

// PayFromBalance charges an analysis from the wallet balance.
func (h *Handler) PayFromBalance(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	contractID := c.Params("contractId")

	res, err := h.service.PayFromBalance(c.UserContext(), accountID, contractID)
	if err != nil {
		switch {
		case errors.Is(err, contract.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "contract not found")
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrContractProcessed):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":     true,
		"price":       res.Price,
		"new_balance": res.NewBalance,
	})
}

// Status reports a payment's state for post-redirect polling.
func (h *Handler) Status(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	orderID := c.Params("orderId")

	res, err := h.service.Status(c.UserContext(), accountID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "payment not found")
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	p := res.Payment
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"order_id":       p.OrderID,
		"type":           string(p.Type),
		"status":         string(p.Status),
		"gateway_status": res.GatewayStatus,
		"amount":         p.Amount,
		"bonus":          p.Bonus,
	})
}
