package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/p2pcore/internal/metrics"
	"github.com/congo-pay/p2pcore/internal/transfer"
)

type stubBackend struct {
	calls  atomic.Int32
	submit func(ctx context.Context) (transfer.Ack, error)
}

func (s *stubBackend) SubmitTransfer(ctx context.Context, _ transfer.Submission) (transfer.Ack, error) {
	s.calls.Add(1)
	return s.submit(ctx)
}

func (s *stubBackend) TransferStatus(context.Context, string) (transfer.Ack, error) {
	return transfer.Ack{}, transfer.ErrUnknownTransfer
}

type recordingCollector struct {
	metrics.NoOpCollector
	states []metrics.CircuitState
}

func (r *recordingCollector) RecordCircuitState(_ string, s metrics.CircuitState) {
	r.states = append(r.states, s)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Hour
	return cfg
}

func TestTimeoutIsTransient(t *testing.T) {
	stub := &stubBackend{submit: func(ctx context.Context) (transfer.Ack, error) {
		<-ctx.Done()
		return transfer.Ack{}, ctx.Err()
	}}
	b := NewBackend(stub, testConfig(), nil, nil)

	_, err := b.SubmitTransfer(context.Background(), transfer.Submission{TransactionID: "tx-1"})
	require.Error(t, err)
	assert.True(t, transfer.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	stub := &stubBackend{submit: func(context.Context) (transfer.Ack, error) {
		return transfer.Ack{}, transfer.Transient(errors.New("connection refused"))
	}}
	collector := &recordingCollector{}
	b := NewBackend(stub, testConfig(), collector, nil)

	for i := 0; i < 2; i++ {
		_, err := b.SubmitTransfer(context.Background(), transfer.Submission{})
		require.True(t, transfer.IsTransient(err))
	}
	assert.Equal(t, metrics.CircuitOpen, b.State())

	_, err := b.SubmitTransfer(context.Background(), transfer.Submission{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, transfer.IsTransient(err), "open circuit must be retryable")
	assert.Equal(t, int32(2), stub.calls.Load(), "open circuit must not reach the backend")
	assert.Equal(t, []metrics.CircuitState{metrics.CircuitOpen}, collector.states)
}

func TestPermanentErrorsDoNotTrip(t *testing.T) {
	stub := &stubBackend{submit: func(context.Context) (transfer.Ack, error) {
		return transfer.Ack{}, errors.New("malformed submission")
	}}
	b := NewBackend(stub, testConfig(), nil, nil)

	for i := 0; i < 5; i++ {
		_, err := b.SubmitTransfer(context.Background(), transfer.Submission{})
		require.Error(t, err)
		assert.False(t, transfer.IsTransient(err))
	}
	assert.Equal(t, metrics.CircuitClosed, b.State())
}

func TestUnknownStatusPassesThrough(t *testing.T) {
	b := NewBackend(&stubBackend{}, testConfig(), nil, nil)
	_, err := b.TransferStatus(context.Background(), "tx-1")
	assert.ErrorIs(t, err, transfer.ErrUnknownTransfer)
	assert.Equal(t, metrics.CircuitClosed, b.State())
}

func TestSuccessPassesAck(t *testing.T) {
	stub := &stubBackend{submit: func(context.Context) (transfer.Ack, error) {
		return transfer.Ack{Status: transfer.AckCompleted, Reference: "ref-1"}, nil
	}}
	b := NewBackend(stub, testConfig(), nil, nil)

	ack, err := b.SubmitTransfer(context.Background(), transfer.Submission{})
	require.NoError(t, err)
	assert.Equal(t, transfer.AckCompleted, ack.Status)
	assert.Equal(t, "ref-1", ack.Reference)
}
