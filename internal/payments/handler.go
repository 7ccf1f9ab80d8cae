package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2pcore/internal/authgate"
	"github.com/congo-pay/p2pcore/internal/middleware"
	"github.com/congo-pay/p2pcore/internal/session"
	"github.com/congo-pay/p2pcore/internal/transfer"
)

const (
	progressWait = 2 * time.Second
	settleWait   = 15 * time.Second
)

// Handler exposes transfer endpoints.
type Handler struct {
	transfers *transfer.Service
	// base outlives requests; transfers started over HTTP are cancelled by
	// logout, explicit cancel, the authorization timeout or shutdown.
	base     context.Context
	exponent int32
}

// NewHandler constructs a transfer handler.
func NewHandler(base context.Context, transfers *transfer.Service, exponent int32) *Handler {
	return &Handler{transfers: transfers, base: base, exponent: exponent}
}

type createTransferRequest struct {
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ServiceType string          `json:"service_type"`
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// Create starts a transfer and reports its state once request checks,
// allocation and the PIN requirement are known.
func (h *Handler) Create(c *fiber.Ctx) error {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req createTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ToMinor(req.Amount, h.exponent)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	t, err := h.transfers.ForSession(sess).Execute(h.base, transfer.Request{
		SenderID:    sess.UserID,
		RecipientID: req.Recipient,
		Amount:      amount,
		Description: req.Description,
		ServiceType: req.ServiceType,
	})
	if err != nil {
		return h.mapError(err)
	}

	waitUntil(c.UserContext(), t, progressWait, func(s transfer.State) bool { return s != transfer.StateCreated })
	return c.Status(http.StatusAccepted).JSON(h.view(t))
}

// Get reports a live transfer.
func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.owned(c)
	if err != nil {
		return err
	}
	return c.JSON(h.view(t))
}

// SubmitPIN authorizes a transfer awaiting its PIN and waits briefly for the
// backend's answer.
func (h *Handler) SubmitPIN(c *fiber.Ctx) error {
	t, err := h.owned(c)
	if err != nil {
		return err
	}
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := t.SubmitPIN(c.UserContext(), req.PIN); err != nil {
		return h.mapError(err)
	}
	waitUntil(c.UserContext(), t, settleWait, transfer.State.Settled)
	return c.JSON(h.view(t))
}

// Result hands out the transfer's outcome once; later calls get 204.
func (h *Handler) Result(c *fiber.Ctx) error {
	t, err := h.owned(c)
	if err != nil {
		return err
	}
	out, ok := h.transfers.ConsumeResult(t)
	if !ok {
		return c.SendStatus(http.StatusNoContent)
	}
	body := fiber.Map{
		"transfer_id":    out.TransferID,
		"transaction_id": out.TransactionID,
		"state":          out.State,
		"amount":         FormatMinor(out.Amount, h.exponent),
		"plan":           h.planView(out),
		"at":             out.At,
	}
	if out.Err != nil {
		body["reason"] = transfer.Reason(out.Err)
		body["error"] = out.Err.Error()
	}
	return c.JSON(body)
}

// Cancel abandons PIN entry. Submitted transfers are unaffected.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	t, err := h.owned(c)
	if err != nil {
		return err
	}
	t.Cancel()
	waitUntil(c.UserContext(), t, progressWait, transfer.State.Settled)
	return c.JSON(h.view(t))
}

// Reconcile asks the backend to settle a journaled transaction.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	txID := c.Params("transactionId")

	rec, err := h.transfers.Journaled(c.UserContext(), txID)
	if err != nil || rec.SenderID != uid {
		return fiber.NewError(http.StatusNotFound, "transfer not found")
	}
	rec, err = h.transfers.Reconcile(c.UserContext(), txID)
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "payment backend unavailable, try again later")
	}
	return c.JSON(fiber.Map{
		"transaction_id": rec.TransactionID,
		"transfer_id":    rec.TransferID,
		"state":          rec.State,
		"reason":         rec.Reason,
		"amount":         FormatMinor(rec.Amount, h.exponent),
		"attempts":       rec.Attempts,
		"updated_at":     rec.UpdatedAt,
	})
}

func (h *Handler) owned(c *fiber.Ctx) (*transfer.Transfer, error) {
	t, err := h.transfers.Lookup(c.Params("id"))
	if err != nil || t.Request().SenderID != middleware.UserID(c) {
		return nil, fiber.NewError(http.StatusNotFound, "transfer not found")
	}
	return t, nil
}

func (h *Handler) view(t *transfer.Transfer) fiber.Map {
	history := t.History()
	steps := make([]fiber.Map, 0, len(history))
	for _, u := range history {
		steps = append(steps, fiber.Map{"state": u.State, "at": u.At})
	}
	body := fiber.Map{
		"id":             t.ID(),
		"transaction_id": t.TransactionID(),
		"state":          t.State(),
		"recipient":      t.Request().RecipientID,
		"amount":         FormatMinor(t.Request().Amount, h.exponent),
		"plan":           h.planView(transfer.Outcome{Plan: t.Plan()}),
		"history":        steps,
		"created_at":     t.CreatedAt(),
	}
	if err := t.Err(); err != nil {
		body["reason"] = transfer.Reason(err)
		body["error"] = err.Error()
	}
	return body
}

func (h *Handler) planView(out transfer.Outcome) []fiber.Map {
	plan := make([]fiber.Map, 0, len(out.Plan))
	for _, in := range out.Plan {
		plan = append(plan, fiber.Map{"pool": in.Tag, "amount": FormatMinor(in.Amount, h.exponent)})
	}
	return plan
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, authgate.ErrIncorrectPIN):
		return fiber.NewError(http.StatusUnprocessableEntity, "incorrect PIN")
	case errors.Is(err, transfer.ErrNotAwaitingPIN):
		return fiber.NewError(http.StatusConflict, "transfer is not awaiting a PIN")
	case errors.Is(err, session.ErrSessionClosed):
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusRequestTimeout, "request timed out")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// waitUntil blocks until done reports true for the current state, the run
// loop exits, or limit passes.
func waitUntil(ctx context.Context, t *transfer.Transfer, limit time.Duration, done func(transfer.State) bool) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	for u := range t.Watch(ctx) {
		if done(u.State) {
			return
		}
	}
}
