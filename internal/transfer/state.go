package transfer

// State is the lifecycle position of a transfer attempt.
type State string

const (
	StateCreated               State = "CREATED"
	StateAwaitingAuthorization State = "AWAITING_AUTHORIZATION"
	StateAuthorized            State = "AUTHORIZED"
	StateSubmitting            State = "SUBMITTING"
	StatePending               State = "PENDING"
	StateSucceeded             State = "SUCCEEDED"
	StateFailed                State = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Settled reports whether the run loop has stopped driving the attempt.
// PENDING is settled but not terminal; reconciliation moves it on.
func (s State) Settled() bool {
	return s == StatePending || s.Terminal()
}
