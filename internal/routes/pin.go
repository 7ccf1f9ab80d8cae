package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/authgate"
	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/middleware"
)

// RegisterPINRoutes wires transaction PIN setup, the destination of the
// pin_setup_required failure. Replacing an existing PIN requires current_pin.
func RegisterPINRoutes(r fiber.Router, ids *identity.Service, rateLimiter fiber.Handler) {
	r.Post("/pin", rateLimiter, func(c *fiber.Ctx) error {
		var req struct {
			PIN        string `json:"pin"`
			CurrentPIN string `json:"current_pin"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		uid := middleware.UserID(c)
		var err error
		if req.CurrentPIN != "" {
			err = ids.ChangePIN(c.UserContext(), uid, req.CurrentPIN, req.PIN)
		} else {
			err = ids.SetPIN(c.UserContext(), uid, req.PIN)
		}
		switch {
		case err == nil:
			return c.SendStatus(http.StatusNoContent)
		case errors.Is(err, identity.ErrInvalidPINFormat):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrPINAlreadySet):
			return fiber.NewError(http.StatusConflict, "PIN already set; supply current_pin to change it")
		case errors.Is(err, authgate.ErrIncorrectPIN):
			return fiber.NewError(http.StatusUnprocessableEntity, "incorrect PIN")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	})
}
