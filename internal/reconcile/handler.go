package reconcile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/imyrist/billing/internal/gateway"
)

// Handler exposes the gateway webhook endpoint.
type Handler struct {
	service  *Service
	password string
}

// NewHandler constructs the webhook handler. The password is the gateway
// terminal secret used to verify callback signatures.
func NewHandler(service *Service, password string) *Handler {
	return &Handler{service: service, password: password}
}

// Webhook receives gateway callbacks. Every outcome that should stop the
// gateway from redelivering acks with {"status": "OK"}; everything else
// returns an error status so the gateway retries.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	// Malformed bodies and signature mismatches are both rejected without
	// touching any state.
	n, err := gateway.ParseNotification(c.Body(), h.password)
	if err != nil {
		return errorStatus(c, http.StatusBadRequest)
	}

	if err := h.service.Process(c.UserContext(), n); err != nil {
		if errors.Is(err, ErrUnknownOrder) {
			return errorStatus(c, http.StatusNotFound)
		}
		return errorStatus(c, http.StatusInternalServerError)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "OK"})
}

func errorStatus(c *fiber.Ctx, status int) error {
	return c.Status(status).JSON(fiber.Map{"status": "ERROR"})
}
