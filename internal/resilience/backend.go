package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/congo-pay/p2pcore/internal/logging"
	"github.com/congo-pay/p2pcore/internal/metrics"
	"github.com/congo-pay/p2pcore/internal/transfer"
)

// ErrCircuitOpen is returned, wrapped as a transient submission error, while
// the breaker rejects calls.
var ErrCircuitOpen = errors.New("payment backend circuit open")

// Config controls the timeout and breaker around a payment backend.
type Config struct {
	Name    string
	Timeout time.Duration
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval is the closed-state window after which counts reset.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// FailureThreshold is the number of consecutive transient failures that
	// opens the breaker.
	FailureThreshold uint32
}

// DefaultConfig suits a backend reached over the network.
func DefaultConfig() Config {
	return Config{
		Name:             "payments",
		Timeout:          10 * time.Second,
		MaxRequests:      1,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
	}
}

// Backend wraps a transfer.Backend with a per-call timeout and a circuit
// breaker. Timeouts, transport failures and open-circuit rejections all
// surface as transient *transfer.SubmissionError values so the orchestrator
// resubmits under the same transaction id.
type Backend struct {
	next    transfer.Backend
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *slog.Logger
}

// NewBackend wraps next.
func NewBackend(next transfer.Backend, cfg Config, collector metrics.Collector, logger *slog.Logger) *Backend {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	b := &Backend{next: next, timeout: cfg.Timeout, metrics: collector, logger: logger}

	threshold := max(cfg.FailureThreshold, 1)
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only transport trouble counts against the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || !transfer.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			b.metrics.RecordCircuitState(name, circuitState(to))
		},
	})
	return b
}

// SubmitTransfer forwards sub through the breaker.
func (b *Backend) SubmitTransfer(ctx context.Context, sub transfer.Submission) (transfer.Ack, error) {
	return b.call(ctx, "submit", func(ctx context.Context) (transfer.Ack, error) {
		return b.next.SubmitTransfer(ctx, sub)
	})
}

// TransferStatus forwards the status query through the breaker.
func (b *Backend) TransferStatus(ctx context.Context, transactionID string) (transfer.Ack, error) {
	return b.call(ctx, "status", func(ctx context.Context) (transfer.Ack, error) {
		return b.next.TransferStatus(ctx, transactionID)
	})
}

// State reports the breaker state.
func (b *Backend) State() metrics.CircuitState {
	return circuitState(b.cb.State())
}

func (b *Backend) call(ctx context.Context, op string, fn func(context.Context) (transfer.Ack, error)) (transfer.Ack, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	res, err := b.cb.Execute(func() (interface{}, error) {
		ack, err := fn(ctx)
		if err != nil {
			return nil, classify(ctx, err)
		}
		return ack, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Warn("circuit breaker open - request rejected", slog.String("operation", op))
			return transfer.Ack{}, transfer.Transient(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
		}
		return transfer.Ack{}, err
	}
	return res.(transfer.Ack), nil
}

// classify marks deadline and cancellation errors as transient and leaves
// everything else as the backend reported it.
func classify(ctx context.Context, err error) error {
	var se *transfer.SubmissionError
	if errors.As(err, &se) || errors.Is(err, transfer.ErrUnknownTransfer) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return transfer.Transient(fmt.Errorf("backend call: %w", err))
	}
	return err
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

var _ transfer.Backend = (*Backend)(nil)
