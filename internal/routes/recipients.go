package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/identity"
)

// RegisterRecipientRoutes lets the client confirm who it is paying before
// starting a transfer.
func RegisterRecipientRoutes(r fiber.Router, ids *identity.Service) {
	r.Get("/recipients/:identifier", func(c *fiber.Ctx) error {
		acc, err := ids.Resolve(c.UserContext(), c.Params("identifier"))
		if err != nil {
			if errors.Is(err, identity.ErrRecipientNotFound) {
				return fiber.NewError(http.StatusNotFound, "recipient not found")
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"user_id":      acc.UserID,
			"display_name": acc.DisplayName,
			"phone":        maskPhone(acc.Phone),
		})
	})
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := []byte(phone)
	for i := 0; i < len(masked)-4; i++ {
		if masked[i] >= '0' && masked[i] <= '9' {
			masked[i] = '*'
		}
	}
	return string(masked)
}
