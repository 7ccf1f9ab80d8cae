package authgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the position of a gate in the PIN interaction.
type State string

const (
	StateUnlocked    State = "UNLOCKED"
	StateAwaitingPIN State = "AWAITING_PIN"
	StateVerifying   State = "VERIFYING"
	StateAuthorized  State = "AUTHORIZED"
	StateRejected    State = "REJECTED"
)

var (
	// ErrIncorrectPIN is returned when the verifier rejects the PIN. The gate
	// goes back to AWAITING_PIN and may be retried.
	ErrIncorrectPIN = errors.New("incorrect PIN")
	// ErrPINSetupRequired means the user never configured a PIN and must do so
	// before any transfer.
	ErrPINSetupRequired = errors.New("transaction PIN not configured")
	// ErrInvalidState is returned when an operation is called out of sequence.
	ErrInvalidState = errors.New("authorization gate: invalid state")
)

// Verifier is the server-side PIN check.
type Verifier interface {
	HasPIN(ctx context.Context, userID string) (bool, error)
	// VerifyPIN returns ErrIncorrectPIN for a wrong PIN; any other error is a
	// failure of the check itself.
	VerifyPIN(ctx context.Context, userID, pin string) error
}

// Gate sequences PIN authorization for a single transfer attempt. It never
// stores the PIN and does not count failures; rate limiting belongs to the
// verifier's transport.
type Gate struct {
	verifier Verifier
	userID   string

	mu    sync.Mutex
	state State
}

// New returns an UNLOCKED gate for userID.
func New(verifier Verifier, userID string) *Gate {
	return &Gate{verifier: verifier, userID: userID, state: StateUnlocked}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// RequiresPIN reports whether a PIN prompt is needed and moves the gate to
// AWAITING_PIN when it is. A false result means the user has no PIN; callers
// must send the user to PIN setup rather than proceed.
func (g *Gate) RequiresPIN(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateUnlocked {
		return false, fmt.Errorf("%w: requires pin from %s", ErrInvalidState, g.state)
	}

	ok, err := g.verifier.HasPIN(ctx, g.userID)
	if err != nil {
		return false, fmt.Errorf("check pin configured: %w", err)
	}
	if ok {
		g.state = StateAwaitingPIN
	}
	return ok, nil
}

// Verify submits pin to the verifier exactly once. ErrIncorrectPIN returns the
// gate to AWAITING_PIN; a verifier failure also returns it there so the user
// may try again; success moves it to AUTHORIZED.
func (g *Gate) Verify(ctx context.Context, pin string) error {
	g.mu.Lock()
	if g.state != StateAwaitingPIN {
		st := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: verify from %s", ErrInvalidState, st)
	}
	g.state = StateVerifying
	g.mu.Unlock()

	err := g.verifier.VerifyPIN(ctx, g.userID, pin)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateVerifying {
		// Rejected while the check was in flight.
		return fmt.Errorf("%w: gate closed during verification", ErrInvalidState)
	}
	if err != nil {
		g.state = StateAwaitingPIN
		if errors.Is(err, ErrIncorrectPIN) {
			return ErrIncorrectPIN
		}
		return fmt.Errorf("verify pin: %w", err)
	}
	g.state = StateAuthorized
	return nil
}

// Reject closes the gate, e.g. when the user abandons PIN entry. Authorized
// gates stay authorized.
func (g *Gate) Reject() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateAuthorized {
		g.state = StateRejected
	}
}
