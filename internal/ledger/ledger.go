package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInsufficientFunds occurs when a debited account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client reference already
	// exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTransactionNotFound is returned by Lookup for unknown references.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAccountNotFound is returned when a posting names an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnbalancedPosting rejects postings whose legs do not sum to zero.
	ErrUnbalancedPosting = errors.New("unbalanced posting")
)

// StatusCompleted represents a settled posting.
const StatusCompleted = "completed"

// Leg moves Amount into (positive) or out of (negative) an account.
type Leg struct {
	AccountCode string
	Amount      int64
}

// Posting is a balanced set of legs identified by Kind and a client Reference.
// The pair (Kind, Reference) is unique; reposting it is a no-op.
type Posting struct {
	Kind      string
	Reference string
	Legs      []Leg
}

// PostingResult captures the outcome of a ledger posting.
type PostingResult struct {
	TransactionID string
	Reference     string
	Status        string
	// Balances holds post-posting balances of every account in the posting.
	Balances map[string]int64
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Post(ctx context.Context, posting Posting) (PostingResult, error)
	Lookup(ctx context.Context, kind, reference string) (PostingResult, error)
}

// netByAccount validates the posting and folds its legs per account, sorted
// by account code so backends lock rows in a stable order.
func netByAccount(p Posting) ([]Leg, error) {
	if p.Kind == "" || p.Reference == "" {
		return nil, fmt.Errorf("%w: kind and reference are required", ErrUnbalancedPosting)
	}
	if len(p.Legs) < 2 {
		return nil, fmt.Errorf("%w: at least two legs required", ErrUnbalancedPosting)
	}

	var sum int64
	net := make(map[string]int64, len(p.Legs))
	for _, leg := range p.Legs {
		if leg.Amount == 0 || leg.AccountCode == "" {
			return nil, fmt.Errorf("%w: empty leg", ErrUnbalancedPosting)
		}
		net[leg.AccountCode] += leg.Amount
		sum += leg.Amount
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: legs sum to %d", ErrUnbalancedPosting, sum)
	}

	folded := make([]Leg, 0, len(net))
	for code, amount := range net {
		folded = append(folded, Leg{AccountCode: code, Amount: amount})
	}
	sort.Slice(folded, func(i, j int) bool { return folded[i].AccountCode < folded[j].AccountCode })
	return folded, nil
}

func referenceKey(kind, reference string) string {
	return kind + ":" + reference
}
