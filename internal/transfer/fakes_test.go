package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/authgate"
	"github.com/congo-pay/p2pcore/internal/identity"
)

const (
	senderID    = "5b1d0c3e-8a52-4a0f-9c8e-2f7c1e0e6a11"
	recipientID = "9f2e7d4a-1b3c-4d5e-8f60-7a1b2c3d4e5f"
	goodPIN     = "2468"
)

type fakeBalances struct {
	pools map[string][]allocation.Pool
}

func (f *fakeBalances) Snapshot(_ context.Context, ownerID string) ([]allocation.Pool, error) {
	return f.pools[ownerID], nil
}

type fakeResolver struct {
	accounts map[string]identity.AccountSummary
}

func (f *fakeResolver) Resolve(_ context.Context, identifier string) (identity.AccountSummary, error) {
	acc, ok := f.accounts[identifier]
	if !ok {
		return identity.AccountSummary{}, identity.ErrRecipientNotFound
	}
	return acc, nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	pins  map[string]string
	calls int
}

func (f *fakeVerifier) HasPIN(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pins[userID]
	return ok, nil
}

func (f *fakeVerifier) VerifyPIN(_ context.Context, userID, pin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.pins[userID] != pin {
		return authgate.ErrIncorrectPIN
	}
	return nil
}

func (f *fakeVerifier) verifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBackend struct {
	mu      sync.Mutex
	subs    []Submission
	script  []error
	ack     Ack
	status  map[string]Ack
	block   chan struct{}
	entered chan struct{}
}

func newFakeBackend(ack Ack) *fakeBackend {
	return &fakeBackend{ack: ack, status: make(map[string]Ack), entered: make(chan struct{}, 16)}
}

func (f *fakeBackend) SubmitTransfer(ctx context.Context, sub Submission) (Ack, error) {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	var err error
	if len(f.script) > 0 {
		err, f.script = f.script[0], f.script[1:]
	}
	block := f.block
	f.mu.Unlock()

	f.entered <- struct{}{}
	if block != nil {
		<-block
	}
	if ctx.Err() != nil {
		return Ack{}, Transient(ctx.Err())
	}
	if err != nil {
		return Ack{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ack.Status != AckRejected {
		f.status[sub.TransactionID] = f.ack
	}
	return f.ack, nil
}

func (f *fakeBackend) TransferStatus(_ context.Context, transactionID string) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ack, ok := f.status[transactionID]
	if !ok {
		return Ack{}, ErrUnknownTransfer
	}
	return ack, nil
}

func (f *fakeBackend) submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.subs...)
}

type harness struct {
	svc      *Service
	backend  *fakeBackend
	verifier *fakeVerifier
	balances *fakeBalances
	journal  Journal
}

func newHarness(t *testing.T, wallet, commission allocation.Money, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		backend:  newFakeBackend(Ack{Status: AckCompleted}),
		verifier: &fakeVerifier{pins: map[string]string{senderID: goodPIN}},
		balances: &fakeBalances{pools: map[string][]allocation.Pool{
			senderID: {
				{Tag: allocation.PoolWallet, Balance: wallet},
				{Tag: allocation.PoolCommission, Balance: commission},
			},
		}},
		journal: NewMemoryJournal(),
	}
	resolver := &fakeResolver{accounts: map[string]identity.AccountSummary{
		recipientID:      {UserID: recipientID, Phone: "+2348000000002"},
		"+2348000000002": {UserID: recipientID, Phone: "+2348000000002"},
		"+2348000000001": {UserID: senderID, Phone: "+2348000000001"},
	}}
	opts = append([]Option{
		WithLimits(Limits{Min: 100, Max: 1_000_000}),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
	}, opts...)
	h.svc = NewService(Deps{
		Balances:   h.balances,
		Recipients: resolver,
		Verifier:   h.verifier,
		Backend:    h.backend,
		Journal:    h.journal,
	}, opts...)
	return h
}

func request(amount allocation.Money) Request {
	return Request{SenderID: senderID, RecipientID: recipientID, Amount: amount, Description: "lunch", ServiceType: "p2p"}
}

func waitFor(t *testing.T, tr *Transfer, want State) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for u := range tr.Watch(ctx) {
		if u.State == want {
			return
		}
	}
	t.Fatalf("transfer never reached %s; stuck at %s (err=%v)", want, tr.State(), tr.Err())
}

func waitDone(t *testing.T, tr *Transfer) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not exit; state %s", tr.State())
	}
}

func states(history []Update) []State {
	out := make([]State, len(history))
	for i, u := range history {
		out[i] = u.State
	}
	return out
}
