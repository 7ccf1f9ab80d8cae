package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/ledger"
	"github.com/congo-pay/p2pcore/internal/wallet"
)

// RegisterDevRoutes provisions demo accounts with a wallet and optional
// opening balances. Balances are only seeded on the in-memory ledger; it is
// mounted in development only.
func RegisterDevRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, led ledger.Ledger, logger *slog.Logger) {
	r.Post("/dev/accounts", func(c *fiber.Ctx) error {
		var req struct {
			Phone       string `json:"phone"`
			Password    string `json:"password"`
			DisplayName string `json:"display_name"`
			DeviceID    string `json:"device_id"`
			PIN         string `json:"pin"`
			Wallet      int64  `json:"wallet_balance"`
			Commission  int64  `json:"commission_balance"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Provision(c.UserContext(), identity.Credentials{Phone: req.Phone, Password: req.Password, DeviceID: req.DeviceID}, req.DisplayName)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if req.PIN != "" {
			if err := ids.SetPIN(c.UserContext(), user.ID, req.PIN); err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
		}
		w, err := wallets.Create(c.UserContext(), wallet.CreateInput{OwnerID: user.ID})
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		ledger.SeedBalance(led, w.AccountCode, req.Wallet)
		ledger.SeedBalance(led, w.CommissionAccountCode, req.Commission)

		logger.Info("dev account provisioned",
			slog.String("user_id", user.ID),
			slog.String("wallet_id", w.ID),
			slog.Bool("pin_set", req.PIN != ""),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":   user.ID,
			"phone":     user.Phone,
			"wallet_id": w.ID,
		})
	})
}
