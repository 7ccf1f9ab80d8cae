package transfer

import (
	"context"
	"errors"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/identity"
)

// AckStatus is the backend's answer to a submission.
type AckStatus string

const (
	// AckAccepted means the backend took the transfer but has not settled it.
	AckAccepted AckStatus = "ACCEPTED"
	// AckCompleted means the funds moved.
	AckCompleted AckStatus = "COMPLETED"
	// AckRejected means the backend refused the transfer; Reason says why.
	AckRejected AckStatus = "REJECTED"
)

// ErrUnknownTransfer is returned by TransferStatus for ids the backend never saw.
var ErrUnknownTransfer = errors.New("backend has no record of transfer")

// Ack is the backend acknowledgement of a submission or status query.
type Ack struct {
	Status    AckStatus
	Reason    string
	Reference string
}

// Submission is what the orchestrator hands the backend once authorized.
type Submission struct {
	TransactionID string
	SenderID      string
	RecipientID   string
	Amount        allocation.Money
	Plan          allocation.Plan
	Description   string
	ServiceType   string
}

// Backend is the external payment system. SubmitTransfer must be idempotent on
// Submission.TransactionID. Transport failures are reported as transient
// *SubmissionError values; any other error is treated as permanent.
type Backend interface {
	SubmitTransfer(ctx context.Context, sub Submission) (Ack, error)
	TransferStatus(ctx context.Context, transactionID string) (Ack, error)
}

// BalanceSource snapshots a user's balance pools.
type BalanceSource interface {
	Snapshot(ctx context.Context, ownerID string) ([]allocation.Pool, error)
}

// RecipientResolver validates a recipient identifier.
type RecipientResolver interface {
	Resolve(ctx context.Context, identifier string) (identity.AccountSummary, error)
}

// IDGenerator issues transaction ids.
type IDGenerator interface {
	Generate(actorID string) string
}
