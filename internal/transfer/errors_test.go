package transfer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/authgate"
)

func TestReason(t *testing.T) {
	cases := map[string]error{
		"":                     nil,
		"invalid_request":      invalid("amount", "must be positive"),
		"insufficient_funds":   &allocation.InsufficientFundsError{Shortfall: 5},
		"pin_setup_required":   fmt.Errorf("wrapped: %w", authgate.ErrPINSetupRequired),
		"cancelled":            ErrCancelled,
		"backend_rejected":     &BackendRejectedError{Reason: "frozen"},
		"submission_transient": Transient(errors.New("reset")),
		"submission_failed":    &SubmissionError{Err: errors.New("bad payload")},
		"internal":             errors.New("boom"),
	}
	for want, err := range cases {
		if got := Reason(err); got != want {
			t.Fatalf("Reason(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestSubmissionErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("send: %w", &SubmissionError{Transient: true, Attempts: 2, Err: cause})

	if !errors.Is(err, cause) || !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected %v to match cause and sentinel", err)
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient")
	}
	if IsTransient(&SubmissionError{Err: cause}) {
		t.Fatalf("permanent failure reported transient")
	}
}
