package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/middleware"
	"github.com/congo-pay/p2pcore/internal/session"
)

// RegisterAuthRoutes wires session login and logout.
func RegisterAuthRoutes(r fiber.Router, sessions *session.Manager, ttl time.Duration, rateLimiter fiber.Handler) {
	group := r.Group("/auth")

	login := func(c *fiber.Ctx) error {
		var req struct {
			Phone    string `json:"phone"`
			Password string `json:"password"`
			DeviceID string `json:"device_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		sess, err := sessions.Login(c.UserContext(), identity.Credentials{
			Phone:    req.Phone,
			Password: req.Password,
			DeviceID: req.DeviceID,
		})
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
			}
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"token":      sess.Token,
			"user_id":    sess.UserID,
			"expires_in": int(ttl.Seconds()),
		})
	}
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, login)
	} else {
		group.Post("/login", login)
	}

	group.Post("/logout", func(c *fiber.Ctx) error {
		token := middleware.BearerToken(c)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		if err := sessions.Logout(c.UserContext(), token); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(http.StatusNoContent)
	})
}
