package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/middleware"
	"github.com/congo-pay/p2pcore/internal/payments"
	"github.com/congo-pay/p2pcore/internal/wallet"
)

// RegisterWalletMeRoute exposes the current user's wallet and both pools.
func RegisterWalletMeRoute(r fiber.Router, wallets *wallet.Service, exponent int32) {
	r.Get("/wallet", func(c *fiber.Ctx) error {
		uid := middleware.UserID(c)
		w, err := wallets.GetByOwner(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		bal, err := wallets.Balance(c.UserContext(), w.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"id":         w.ID,
			"currency":   w.Currency,
			"status":     w.Status,
			"created_at": w.CreatedAt,
			"balances": fiber.Map{
				"wallet":     payments.FormatMinor(bal.Wallet, exponent),
				"commission": payments.FormatMinor(bal.Commission, exponent),
				"total":      payments.FormatMinor(bal.Total(), exponent),
			},
			"as_of": bal.AsOf,
		})
	})
}
