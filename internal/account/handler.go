package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/ledger"
)

// Handler exposes wallet read endpoints and the admin balance adjustment.
type Handler struct {
	accounts Repository
	ledger   ledger.Ledger
}

// NewHandler builds the account HTTP handler.
func NewHandler(accounts Repository, ledgerBackend ledger.Ledger) *Handler {
	return &Handler{accounts: accounts, ledger: ledgerBackend}
}

// Balance returns the authenticated account's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)

	balance, err := h.ledger.Balance(c.UserContext(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			// No ledger row yet means the account never moved money.
			balance = 0
		} else {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"balance":   balance,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type entryResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Balance     int64  `json:"balance"`
	Description string `json:"description,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	ContractID  string `json:"contract_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Transactions lists the authenticated account's ledger entries, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	limit := c.QueryInt("limit", 50)

	entries, err := h.ledger.Entries(c.UserContext(), accountID, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": []entryResponse{}})
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Amount:      e.Amount,
			Balance:     e.Balance,
			Description: e.Description,
			PaymentID:   e.PaymentID,
			ContractID:  e.ContractID,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

type adjustRequest struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// AdminAdjust posts an admin ledger entry with a signed amount. A negative
// amount debits and is refused when it would overdraw the account.
func (h *Handler) AdminAdjust(c *fiber.Ctx) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.AccountID == "" {
		return fiber.NewError(http.StatusBadRequest, "account_id is required")
	}
	if req.Amount == 0 {
		return fiber.NewError(http.StatusBadRequest, "amount must be non-zero")
	}

	ctx := c.UserContext()
	if _, err := h.accounts.Ensure(ctx, req.AccountID, req.Email); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if err := h.ledger.EnsureAccount(ctx, req.AccountID); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	description := req.Description
	if description == "" {
		description = "Admin balance adjustment"
	}

	var entry ledger.Entry
	var err error
	if req.Amount > 0 {
		entry, err = h.ledger.Credit(ctx, req.AccountID, req.Amount, ledger.KindAdmin, description, ledger.Links{})
	} else {
		entry, err = h.ledger.Debit(ctx, req.AccountID, -req.Amount, ledger.KindAdmin, description, ledger.Links{})
	}
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return fiber.NewError(http.StatusBadRequest, "insufficient funds")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":     true,
		"entry_id":    entry.ID,
		"new_balance": entry.Balance,
	})
}
