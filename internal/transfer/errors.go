package transfer

import (
	"errors"
	"fmt"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/authgate"
	"github.com/congo-pay/p2pcore/internal/session"
)

var (
	// ErrInvalidRequest matches every *InvalidRequestError.
	ErrInvalidRequest = errors.New("invalid transfer request")
	// ErrSubmissionFailed matches every *SubmissionError.
	ErrSubmissionFailed = errors.New("transfer submission failed")
	// ErrBackendRejected matches every *BackendRejectedError.
	ErrBackendRejected = errors.New("transfer rejected by backend")
	// ErrCancelled is the failure reason when PIN entry is abandoned.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrTransferNotFound is returned for unknown attempt or transaction ids.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrNotAwaitingPIN is returned by SubmitPIN outside AWAITING_AUTHORIZATION.
	ErrNotAwaitingPIN = errors.New("transfer is not awaiting authorization")
)

// InvalidRequestError describes a request the user must correct.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid transfer request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason}
}

// SubmissionError is a failed call to the payment backend. Transient failures
// may be resubmitted under the same transaction id.
type SubmissionError struct {
	Transient bool
	Attempts  int
	Err       error
}

func (e *SubmissionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("submission failed (%s, %d attempts): %v", kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("submission failed (%s): %v", kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

// Transient wraps err as a retryable submission failure.
func Transient(err error) error {
	return &SubmissionError{Transient: true, Err: err}
}

// IsTransient reports whether err is a retryable submission failure.
func IsTransient(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Transient
}

// BackendRejectedError carries the backend's reason verbatim.
type BackendRejectedError struct {
	Reason string
}

func (e *BackendRejectedError) Error() string {
	return "transfer rejected: " + e.Reason
}

func (e *BackendRejectedError) Is(target error) bool {
	return target == ErrBackendRejected
}

// Reason is a stable machine-readable code for a failure, used in API
// responses, journal rows and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, allocation.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, authgate.ErrPINSetupRequired):
		return "pin_setup_required"
	case errors.Is(err, session.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrBackendRejected):
		return "backend_rejected"
	case IsTransient(err):
		return "submission_transient"
	case errors.Is(err, ErrSubmissionFailed):
		return "submission_failed"
	default:
		return "internal"
	}
}
