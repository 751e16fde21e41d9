package promo

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes promo code HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a promo HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type codeRequest struct {
	Code string `json:"code"`
}

type checkResponse struct {
	Valid       bool   `json:"valid"`
	Kind        string `json:"kind,omitempty"`
	Value       int64  `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Check validates a code without applying it.
func (h *Handler) Check(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return fiber.NewError(http.StatusBadRequest, "code is required")
	}

	effect, err := h.service.Check(c.UserContext(), accountID, req.Code)
	if err != nil {
		if reason, ok := validationReason(err); ok {
			return c.Status(http.StatusOK).JSON(checkResponse{Valid: false, Reason: reason})
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(checkResponse{
		Valid:       true,
		Kind:        string(effect.Kind),
		Value:       effect.Value,
		Description: effect.Description,
	})
}

// Apply redeems a code for the authenticated account.
func (h *Handler) Apply(c *fiber.Ctx) error {
	accountID, _ := c.Locals("account_id").(string)
	email, _ := c.Locals("account_email").(string)
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return fiber.NewError(http.StatusBadRequest, "code is required")
	}

	effect, err := h.service.Apply(c.UserContext(), accountID, email, req.Code)
	if err != nil {
		if reason, ok := validationReason(err); ok {
			status := http.StatusBadRequest
			if errors.Is(err, ErrNotFound) {
				status = http.StatusNotFound
			}
			return fiber.NewError(status, reason)
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	resp := fiber.Map{
		"success":     true,
		"kind":        string(effect.Kind),
		"value":       effect.Value,
		"description": effect.Description,
	}
	if effect.Kind == KindCredit {
		resp["new_balance"] = effect.NewBalance
	}
	return c.Status(http.StatusOK).JSON(resp)
}

type createRequest struct {
	Code       string     `json:"code"`
	Kind       string     `json:"kind"`
	Value      int64      `json:"value"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	MaxUses    int        `json:"max_uses"`
	SingleUse  bool       `json:"single_use"`
	Active     *bool      `json:"active"`
}

// Create registers a new promo code (admin).
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	input := CreateInput{
		Code:       req.Code,
		Kind:       Kind(req.Kind),
		Value:      req.Value,
		ValidUntil: req.ValidUntil,
		MaxUses:    req.MaxUses,
		SingleUse:  req.SingleUse,
		Active:     true,
	}
	if req.ValidFrom != nil {
		input.ValidFrom = *req.ValidFrom
	}
	if req.Active != nil {
		input.Active = *req.Active
	}

	p, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(toPromoResponse(p))
}

// List returns all promo codes with usage stats (admin).
func (h *Handler) List(c *fiber.Ctx) error {
	codes, err := h.service.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(codes))
	for _, p := range codes {
		out = append(out, toPromoResponse(p))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"promo_codes": out})
}

func toPromoResponse(p PromoCode) fiber.Map {
	resp := fiber.Map{
		"id":          p.ID,
		"code":        p.Code,
		"kind":        string(p.Kind),
		"value":       p.Value,
		"valid_from":  p.ValidFrom,
		"max_uses":    p.MaxUses,
		"single_use":  p.SingleUse,
		"active":      p.Active,
		"usage_count": p.UsageCount,
	}
	if p.ValidUntil != nil {
		resp["valid_until"] = *p.ValidUntil
	}
	return resp
}

func validationReason(err error) (string, bool) {
	for _, known := range []error{ErrNotFound, ErrInactive, ErrNotStarted, ErrExpired, ErrExhausted, ErrAlreadyUsed} {
		if errors.Is(err, known) {
			return known.Error(), true
		}
	}
	return "", false
}
