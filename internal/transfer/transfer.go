package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/result"
)

// Update is one state transition as seen by watchers.
type Update struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
	Err   error     `json:"-"`
}

// Outcome is the single result delivered once the run loop settles.
type Outcome struct {
	TransferID    string          `json:"transfer_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	State         State           `json:"state"`
	Amount        int64           `json:"amount"`
	Plan          allocation.Plan `json:"plan,omitempty"`
	Err           error           `json:"-"`
	At            time.Time       `json:"at"`
}

type pinAttempt struct {
	pin   string
	reply chan error
}

// Transfer is the handle to one Execute call.
type Transfer struct {
	id      string
	request Request
	created time.Time
	result  *result.Channel[Outcome]

	pins      chan pinAttempt
	cancel    chan struct{}
	cancelled sync.Once
	leftAuth  chan struct{}
	leftOnce  sync.Once
	done      chan struct{}

	mu       sync.Mutex
	state    State
	history  []Update
	changed  chan struct{}
	txID     string
	plan     allocation.Plan
	err      error
	consumed bool
}

func newTransfer(id string, req Request, now time.Time) *Transfer {
	return &Transfer{
		id:       id,
		request:  req,
		created:  now,
		result:   result.New[Outcome](),
		pins:     make(chan pinAttempt),
		cancel:   make(chan struct{}),
		leftAuth: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateCreated,
		history:  []Update{{State: StateCreated, At: now}},
		changed:  make(chan struct{}),
	}
}

// ID is the attempt id; it exists before a transaction id does.
func (t *Transfer) ID() string { return t.id }

// Request returns the request the transfer was started with.
func (t *Transfer) Request() Request { return t.request }

// CreatedAt is when Execute accepted the request.
func (t *Transfer) CreatedAt() time.Time { return t.created }

// Result is the single-delivery outcome slot.
func (t *Transfer) Result() *result.Channel[Outcome] { return t.result }

// Done is closed when the run loop exits.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// State returns the current state.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TransactionID is empty until SUBMITTING.
func (t *Transfer) TransactionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txID
}

// Plan returns the allocation plan once computed.
func (t *Transfer) Plan() allocation.Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(allocation.Plan(nil), t.plan...)
}

// Err returns the failure reason, if any.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// History returns every transition so far.
func (t *Transfer) History() []Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Update(nil), t.history...)
}

// Watch streams every transition, starting from CREATED, without dropping
// any. The channel closes after a terminal state or when ctx ends.
func (t *Transfer) Watch(ctx context.Context) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)
		next := 0
		for {
			t.mu.Lock()
			pending := append([]Update(nil), t.history[next:]...)
			changed := t.changed
			t.mu.Unlock()

			for _, u := range pending {
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
				next++
				if u.State.Terminal() {
					return
				}
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// SubmitPIN hands pin to the authorization step and waits for the verdict.
// authgate.ErrIncorrectPIN leaves the transfer awaiting another attempt.
func (t *Transfer) SubmitPIN(ctx context.Context, pin string) error {
	if t.State() != StateAwaitingAuthorization {
		return ErrNotAwaitingPIN
	}
	reply := make(chan error, 1)
	select {
	case t.pins <- pinAttempt{pin: pin, reply: reply}:
	case <-t.leftAuth:
		return ErrNotAwaitingPIN
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel abandons PIN entry. It has no effect once authorized; a submitted
// transfer is never discarded.
func (t *Transfer) Cancel() {
	t.cancelled.Do(func() { close(t.cancel) })
}

func (t *Transfer) leaveAuthorization() {
	t.leftOnce.Do(func() { close(t.leftAuth) })
}

func (t *Transfer) transition(state State, err error, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() || t.state == state {
		return false
	}
	t.state = state
	if err != nil {
		t.err = err
	}
	t.history = append(t.history, Update{State: state, At: now, Err: err})
	close(t.changed)
	t.changed = make(chan struct{})
	return true
}

func (t *Transfer) setPlan(plan allocation.Plan) {
	t.mu.Lock()
	t.plan = plan
	t.mu.Unlock()
}

func (t *Transfer) setTransactionID(id string) {
	t.mu.Lock()
	t.txID = id
	t.mu.Unlock()
}

func (t *Transfer) outcome(now time.Time) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Outcome{
		TransferID:    t.id,
		TransactionID: t.txID,
		State:         t.state,
		Amount:        t.request.Amount,
		Plan:          append(allocation.Plan(nil), t.plan...),
		Err:           t.err,
		At:            now,
	}
}

// markConsumed records that a terminal outcome reached its observer, after
// which the handle may be evicted.
func (t *Transfer) markConsumed() {
	t.mu.Lock()
	t.consumed = true
	t.mu.Unlock()
}

func (t *Transfer) evictable(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() && t.consumed {
		return true
	}
	if len(t.history) == 0 {
		return false
	}
	last := t.history[len(t.history)-1].At
	return t.state.Settled() && last.Before(cutoff)
}
