package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]int64
	transactions map[string]PostingResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		transactions: make(map[string]PostingResult),
	}
}

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
func SeedBalance(l Ledger, code string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[code] = amount
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return balance, nil
}

func (l *inMemoryLedger) Post(_ context.Context, p Posting) (PostingResult, error) {
	legs, err := netByAccount(p)
	if err != nil {
		return PostingResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := referenceKey(p.Kind, p.Reference)
	if res, exists := l.transactions[key]; exists {
		return res, ErrDuplicateTransaction
	}

	for _, leg := range legs {
		balance, ok := l.balances[leg.AccountCode]
		if !ok {
			return PostingResult{}, fmt.Errorf("%w: %s", ErrAccountNotFound, leg.AccountCode)
		}
		if leg.Amount < 0 && balance+leg.Amount < 0 {
			return PostingResult{}, ErrInsufficientFunds
		}
	}

	res := PostingResult{
		TransactionID: uuid.NewString(),
		Reference:     p.Reference,
		Status:        StatusCompleted,
		Balances:      make(map[string]int64, len(legs)),
	}
	for _, leg := range legs {
		l.balances[leg.AccountCode] += leg.Amount
		res.Balances[leg.AccountCode] = l.balances[leg.AccountCode]
	}

	l.transactions[key] = res
	return res, nil
}

func (l *inMemoryLedger) Lookup(_ context.Context, kind, reference string) (PostingResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.transactions[referenceKey(kind, reference)]
	if !ok {
		return PostingResult{}, ErrTransactionNotFound
	}
	return res, nil
}
