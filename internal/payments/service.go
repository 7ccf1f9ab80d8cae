package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/ledger"
	"github.com/congo-pay/p2pcore/internal/logging"
	"github.com/congo-pay/p2pcore/internal/notification"
	"github.com/congo-pay/p2pcore/internal/transfer"
	"github.com/congo-pay/p2pcore/internal/wallet"
)

// PostingKind tags ledger transactions created by peer transfers.
const PostingKind = "p2p"

// Service is the ledger-backed payment backend. It settles a transfer in one
// balanced posting keyed on the transaction id, so resubmitting an id never
// debits twice.
type Service struct {
	ledger        ledger.Ledger
	walletService *wallet.Service
	notifier      notification.Notifier
	exponent      int32
	logger        *slog.Logger
}

// NewService constructs a payment service. exponent is the number of minor
// units digits of the currency, 2 for kobo.
func NewService(ledger ledger.Ledger, walletService *wallet.Service, notifier notification.Notifier, exponent int32, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: ledger, walletService: walletService, notifier: notifier, exponent: exponent, logger: logger}
}

// SubmitTransfer debits each pool named in the plan and credits the
// recipient's wallet.
func (s *Service) SubmitTransfer(ctx context.Context, sub transfer.Submission) (transfer.Ack, error) {
	if sub.TransactionID == "" {
		return transfer.Ack{}, errors.New("transaction id is required")
	}
	if sub.Plan.Total() != sub.Amount || sub.Amount <= 0 {
		return transfer.Ack{}, fmt.Errorf("plan total %d does not match amount %d", sub.Plan.Total(), sub.Amount)
	}

	from, err := s.walletService.GetByOwner(ctx, sub.SenderID)
	if err != nil {
		return s.walletError(err, "sender")
	}
	to, err := s.walletService.GetByOwner(ctx, sub.RecipientID)
	if err != nil {
		return s.walletError(err, "recipient")
	}
	if from.Currency != to.Currency {
		return rejected("currency mismatch"), nil
	}

	legs, err := debitLegs(from, sub.Plan)
	if err != nil {
		return transfer.Ack{}, err
	}
	legs = append(legs, ledger.Leg{AccountCode: to.AccountCode, Amount: sub.Amount})

	res, err := s.ledger.Post(ctx, ledger.Posting{Kind: PostingKind, Reference: sub.TransactionID, Legs: legs})
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		s.logger.Info("duplicate submission acknowledged", slog.String("transaction_id", sub.TransactionID))
		return transfer.Ack{Status: transfer.AckCompleted, Reference: res.TransactionID}, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return rejected("insufficient funds"), nil
	case errors.Is(err, ledger.ErrUnbalancedPosting), errors.Is(err, ledger.ErrAccountNotFound):
		return transfer.Ack{}, err
	case err != nil:
		return transfer.Ack{}, transfer.Transient(err)
	}

	s.notify(ctx, to.OwnerID, sub)
	return transfer.Ack{Status: transfer.AckCompleted, Reference: res.TransactionID}, nil
}

// TransferStatus reports whether the ledger holds a posting for transactionID.
func (s *Service) TransferStatus(ctx context.Context, transactionID string) (transfer.Ack, error) {
	res, err := s.ledger.Lookup(ctx, PostingKind, transactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return transfer.Ack{}, transfer.ErrUnknownTransfer
		}
		return transfer.Ack{}, transfer.Transient(err)
	}
	if res.Status != ledger.StatusCompleted {
		return transfer.Ack{Status: transfer.AckAccepted, Reference: res.TransactionID}, nil
	}
	return transfer.Ack{Status: transfer.AckCompleted, Reference: res.TransactionID}, nil
}

// FormatAmount renders minor units in major units, e.g. 150050 as "1500.50".
func (s *Service) FormatAmount(amount allocation.Money) string {
	return FormatMinor(amount, s.exponent)
}

func debitLegs(from wallet.Wallet, plan allocation.Plan) ([]ledger.Leg, error) {
	legs := make([]ledger.Leg, 0, len(plan)+1)
	for _, in := range plan {
		var code string
		switch in.Tag {
		case allocation.PoolWallet:
			code = from.AccountCode
		case allocation.PoolCommission:
			code = from.CommissionAccountCode
		default:
			return nil, fmt.Errorf("%w: %s", allocation.ErrInvalidPool, in.Tag)
		}
		legs = append(legs, ledger.Leg{AccountCode: code, Amount: -in.Amount})
	}
	return legs, nil
}

func (s *Service) walletError(err error, party string) (transfer.Ack, error) {
	if errors.Is(err, wallet.ErrWalletNotFound) {
		return rejected(party + " has no wallet"), nil
	}
	return transfer.Ack{}, transfer.Transient(fmt.Errorf("load %s wallet: %w", party, err))
}

func (s *Service) notify(ctx context.Context, ownerID string, sub transfer.Submission) {
	if s.notifier == nil {
		return
	}
	body := "You received " + s.FormatAmount(sub.Amount)
	if sub.Description != "" {
		body += ": " + sub.Description
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: ownerID,
		Body:        body,
		Reference:   sub.TransactionID,
	})
	if err != nil {
		s.logger.Warn("recipient notification failed", slog.String("transaction_id", sub.TransactionID), slog.Any("error", err))
	}
}

func rejected(reason string) transfer.Ack {
	return transfer.Ack{Status: transfer.AckRejected, Reason: reason}
}

var _ transfer.Backend = (*Service)(nil)
