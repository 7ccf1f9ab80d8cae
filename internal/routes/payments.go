package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/payments"
)

// RegisterTransferRoutes wires transfer endpoints.
func RegisterTransferRoutes(r fiber.Router, h *payments.Handler, pinLimiter fiber.Handler) {
	group := r.Group("/transfers")
	group.Post("/", h.Create)
	group.Post("/reconcile/:transactionId", h.Reconcile)
	group.Get("/:id", h.Get)
	group.Post("/:id/pin", pinLimiter, h.SubmitPIN)
	group.Get("/:id/result", h.Result)
	group.Delete("/:id", h.Cancel)
}
