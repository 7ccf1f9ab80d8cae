package transfer

import (
	"strconv"
	"strings"

	"github.com/congo-pay/p2pcore/internal/allocation"
)

const maxDescriptionLength = 140

// Request is a user's intent to move Amount minor units to RecipientID.
type Request struct {
	SenderID    string           `json:"sender_id"`
	RecipientID string           `json:"recipient_id"`
	Amount      allocation.Money `json:"amount"`
	Description string           `json:"description"`
	ServiceType string           `json:"service_type"`
}

// Limits is the inclusive amount range accepted for a transfer.
type Limits struct {
	Min allocation.Money
	Max allocation.Money
}

// Contains reports whether amount lies in [Min, Max].
func (l Limits) Contains(amount allocation.Money) bool {
	return amount >= l.Min && amount <= l.Max
}

// validate checks the request shape. Recipient resolution happens later since
// it needs I/O.
func (r Request) validate(limits Limits) error {
	switch {
	case strings.TrimSpace(r.SenderID) == "":
		return invalid("sender_id", "is required")
	case strings.TrimSpace(r.RecipientID) == "":
		return invalid("recipient_id", "is required")
	case r.Amount <= 0:
		return invalid("amount", "must be positive")
	case !limits.Contains(r.Amount):
		return &InvalidRequestError{
			Field:  "amount",
			Reason: "must be between " + strconv.FormatInt(limits.Min, 10) + " and " + strconv.FormatInt(limits.Max, 10),
		}
	case len(r.Description) > maxDescriptionLength:
		return invalid("description", "is too long")
	case strings.EqualFold(strings.TrimSpace(r.SenderID), strings.TrimSpace(r.RecipientID)):
		return invalid("recipient_id", "must differ from sender")
	}
	return nil
}
