package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func p2p(reference string, legs ...Leg) Posting {
	return Posting{Kind: "p2p", Reference: reference, Legs: legs}
}

func TestInMemoryLedger_PostMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	for _, code := range []string{"wallet:a", "commission:a", "wallet:b"} {
		if err := l.EnsureAccount(ctx, code); err != nil {
			t.Fatalf("ensure account %s: %v", code, err)
		}
	}

	SeedBalance(l, "wallet:a", 300)
	SeedBalance(l, "commission:a", 400)

	res, err := l.Post(ctx, p2p("client-1",
		Leg{AccountCode: "wallet:a", Amount: -300},
		Leg{AccountCode: "commission:a", Amount: -200},
		Leg{AccountCode: "wallet:b", Amount: 500},
	))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if res.Balances["wallet:a"] != 0 || res.Balances["commission:a"] != 200 || res.Balances["wallet:b"] != 500 {
		t.Fatalf("unexpected balances: %+v", res.Balances)
	}

	ledgerImpl := l.(*inMemoryLedger)
	total := ledgerImpl.balances["wallet:a"] + ledgerImpl.balances["commission:a"] + ledgerImpl.balances["wallet:b"]
	if total != 700 {
		t.Fatalf("ledger not balanced, total=%d", total)
	}
}

func TestInMemoryLedger_DuplicateReference(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:a")
	l.EnsureAccount(ctx, "wallet:b")
	SeedBalance(l, "wallet:a", 5_000)

	first, err := l.Post(ctx, p2p("dup", Leg{"wallet:a", -500}, Leg{"wallet:b", 500}))
	if err != nil {
		t.Fatalf("initial post failed: %v", err)
	}
	again, err := l.Post(ctx, p2p("dup", Leg{"wallet:a", -500}, Leg{"wallet:b", 500}))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if again.TransactionID != first.TransactionID {
		t.Fatalf("duplicate must return the original posting")
	}

	balance, _ := l.Balance(ctx, "wallet:a")
	if balance != 4_500 {
		t.Fatalf("duplicate debited twice, balance=%d", balance)
	}

	found, err := l.Lookup(ctx, "p2p", "dup")
	if err != nil || found.TransactionID != first.TransactionID {
		t.Fatalf("lookup: %+v %v", found, err)
	}
	if _, err := l.Lookup(ctx, "p2p", "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_RejectsBadPostings(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:a")
	l.EnsureAccount(ctx, "wallet:b")
	SeedBalance(l, "wallet:a", 100)

	if _, err := l.Post(ctx, p2p("x", Leg{"wallet:a", -100}, Leg{"wallet:b", 90})); !errors.Is(err, ErrUnbalancedPosting) {
		t.Fatalf("expected unbalanced, got %v", err)
	}
	if _, err := l.Post(ctx, p2p("y", Leg{"wallet:a", -200}, Leg{"wallet:b", 200})); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := l.Post(ctx, p2p("z", Leg{"wallet:a", -10}, Leg{"wallet:nope", 10})); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentPostings(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "wallet:a")
	l.EnsureAccount(ctx, "wallet:b")
	SeedBalance(l, "wallet:a", 100_000)
	ledgerImpl := l.(*inMemoryLedger)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("tx-%d", i)
			if _, err := l.Post(ctx, p2p(ref, Leg{"wallet:a", -amount}, Leg{"wallet:b", amount})); err != nil {
				t.Errorf("post %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := ledgerImpl.balances["wallet:a"] + ledgerImpl.balances["wallet:b"]
	if total != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
}
