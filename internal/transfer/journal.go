package transfer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/p2pcore/internal/allocation"
)

// Record is the durable trace of an attempt from SUBMITTING onward. It is what
// survives a process restart or an abandoned client.
type Record struct {
	TransactionID string           `json:"transaction_id"`
	TransferID    string           `json:"transfer_id"`
	SenderID      string           `json:"sender_id"`
	RecipientID   string           `json:"recipient_id"`
	Amount        allocation.Money `json:"amount"`
	Plan          allocation.Plan  `json:"plan"`
	Description   string           `json:"description"`
	ServiceType   string           `json:"service_type"`
	State         State            `json:"state"`
	Reason        string           `json:"reason,omitempty"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (r Record) submission() Submission {
	return Submission{
		TransactionID: r.TransactionID,
		SenderID:      r.SenderID,
		RecipientID:   r.RecipientID,
		Amount:        r.Amount,
		Plan:          r.Plan,
		Description:   r.Description,
		ServiceType:   r.ServiceType,
	}
}

// Journal persists records keyed by transaction id.
type Journal interface {
	// Save inserts or replaces the record for rec.TransactionID. A record
	// already in a terminal state is left untouched.
	Save(ctx context.Context, rec Record) error
	// Get returns ErrTransferNotFound for unknown ids.
	Get(ctx context.Context, transactionID string) (Record, error)
	// Unsettled lists SUBMITTING and PENDING records last touched before cutoff,
	// oldest first.
	Unsettled(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
}

type memoryJournal struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryJournal returns an in-process journal for development and tests.
func NewMemoryJournal() Journal {
	return &memoryJournal{records: make(map[string]Record)}
}

func (j *memoryJournal) Save(_ context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.records[rec.TransactionID]; ok && prev.State.Terminal() {
		return nil
	}
	rec.Plan = append(allocation.Plan(nil), rec.Plan...)
	j.records[rec.TransactionID] = rec
	return nil
}

func (j *memoryJournal) Get(_ context.Context, transactionID string) (Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.records[transactionID]
	if !ok {
		return Record{}, ErrTransferNotFound
	}
	return rec, nil
}

func (j *memoryJournal) Unsettled(_ context.Context, cutoff time.Time, limit int) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Record
	for _, rec := range j.records {
		if (rec.State == StateSubmitting || rec.State == StatePending) && rec.UpdatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
