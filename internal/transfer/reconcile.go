package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Reconcile settles a journaled attempt by asking the backend what became of
// it. An id the backend never saw is resubmitted unchanged, which is safe
// because submission is idempotent on the transaction id. A live handle for
// the attempt receives the new outcome. An attempt whose run loop is still
// submitting is returned as journaled; that loop settles it.
func (s *Service) Reconcile(ctx context.Context, transactionID string) (Record, error) {
	rec, err := s.journal.Get(ctx, transactionID)
	if err != nil {
		return Record{}, err
	}
	if rec.State.Terminal() {
		return rec, nil
	}
	if t, ok := s.registry.ByTransaction(transactionID); ok && !t.State().Settled() {
		return rec, nil
	}
	log := s.logger.With(slog.String("transaction_id", transactionID), slog.String("transfer_id", rec.TransferID))

	ack, err := s.backend.TransferStatus(ctx, transactionID)
	if errors.Is(err, ErrUnknownTransfer) {
		log.Info("backend has no record, resubmitting")
		var attempts int
		ack, attempts, err = s.send(ctx, rec.submission(), log)
		rec.Attempts += attempts
	} else if err != nil {
		return rec, fmt.Errorf("query transfer status: %w", err)
	}

	state, failure := resolveAck(ack, err)
	rec.State, rec.Reason, rec.UpdatedAt = state, Reason(failure), s.now()
	if err := s.journal.Save(ctx, rec); err != nil {
		return rec, fmt.Errorf("journal: %w", err)
	}
	if t, ok := s.registry.ByTransaction(transactionID); ok {
		s.settle(t, state, failure, log)
	}
	log.Info("transfer reconciled", slog.String("state", string(state)))
	return rec, nil
}

// ReconcileUnsettled reconciles up to limit attempts that have sat in
// SUBMITTING or PENDING for longer than age. It returns how many reached a
// terminal state.
func (s *Service) ReconcileUnsettled(ctx context.Context, age time.Duration, limit int) (int, error) {
	records, err := s.journal.Unsettled(ctx, s.now().Add(-age), limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		out, err := s.Reconcile(ctx, rec.TransactionID)
		if err != nil {
			s.logger.Warn("reconcile failed", slog.String("transaction_id", rec.TransactionID), slog.Any("error", err))
			continue
		}
		if out.State.Terminal() {
			settled++
		}
	}
	return settled, nil
}
