package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/authgate"
	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/logging"
	"github.com/congo-pay/p2pcore/internal/metrics"
	"github.com/congo-pay/p2pcore/internal/session"
	"github.com/congo-pay/p2pcore/internal/txid"
)

// Deps are the collaborators a Service drives.
type Deps struct {
	Balances   BalanceSource
	Recipients RecipientResolver
	Verifier   authgate.Verifier
	Backend    Backend
	Journal    Journal
	IDs        IDGenerator
}

// Service holds shared transfer dependencies. Use ForSession to obtain an
// Orchestrator bound to a logged-in user.
type Service struct {
	balances    BalanceSource
	recipients  RecipientResolver
	verifier    authgate.Verifier
	backend     Backend
	journal     Journal
	ids         IDGenerator
	registry    *Registry
	limits      Limits
	retry       RetryPolicy
	authTimeout time.Duration
	metrics     metrics.Collector
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLimits sets the accepted amount range.
func WithLimits(l Limits) Option { return func(s *Service) { s.limits = l } }

// WithRetryPolicy sets the resubmission policy for transient failures.
func WithRetryPolicy(p RetryPolicy) Option { return func(s *Service) { s.retry = p } }

// WithAuthorizationTimeout bounds how long a transfer waits for PIN entry.
// Zero waits until cancelled.
func WithAuthorizationTimeout(d time.Duration) Option {
	return func(s *Service) { s.authTimeout = d }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option { return func(s *Service) { s.metrics = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// DefaultLimits is ₦100 to ₦500,000 in kobo.
var DefaultLimits = Limits{Min: 10_000, Max: 50_000_000}

// NewService wires a transfer service. A nil Journal or IDs falls back to the
// in-memory journal and the SHA-256 generator.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		balances:   deps.Balances,
		recipients: deps.Recipients,
		verifier:   deps.Verifier,
		backend:    deps.Backend,
		journal:    deps.Journal,
		ids:        deps.IDs,
		registry:   NewRegistry(),
		limits:     DefaultLimits,
		retry:      DefaultRetryPolicy,
		metrics:    metrics.NoOpCollector{},
		logger:     logging.Discard(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal == nil {
		s.journal = NewMemoryJournal()
	}
	if s.ids == nil {
		s.ids = txid.MustNew()
	}
	return s
}

// Registry exposes the live handle index.
func (s *Service) Registry() *Registry { return s.registry }

// Limits returns the configured amount range.
func (s *Service) Limits() Limits { return s.limits }

// Lookup returns a live handle by attempt id.
func (s *Service) Lookup(id string) (*Transfer, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

// ConsumeResult takes the transfer's outcome if one is waiting. Once a
// terminal outcome is consumed the handle becomes eligible for eviction.
func (s *Service) ConsumeResult(t *Transfer) (Outcome, bool) {
	out, ok := t.result.Consume()
	if ok && out.State.Terminal() {
		t.markConsumed()
	}
	return out, ok
}

// Journaled returns the durable record for transactionID.
func (s *Service) Journaled(ctx context.Context, transactionID string) (Record, error) {
	return s.journal.Get(ctx, transactionID)
}

// Orchestrator runs transfers on behalf of one session.
type Orchestrator struct {
	svc     *Service
	session *session.Session
}

// ForSession binds the service to sess. Logging out cancels PIN waits of
// every transfer started through the returned Orchestrator.
func (s *Service) ForSession(sess *session.Session) *Orchestrator {
	return &Orchestrator{svc: s, session: sess}
}

// Execute starts a transfer and returns its handle immediately. Progress is
// observed through Watch and the outcome through Result. An empty SenderID
// defaults to the session user.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Transfer, error) {
	if o.session != nil {
		if !o.session.Active() {
			return nil, session.ErrSessionClosed
		}
		if req.SenderID == "" {
			req.SenderID = o.session.UserID
		}
	}

	t := newTransfer(uuid.NewString(), req, o.svc.now())
	o.svc.registry.add(t)
	o.svc.metrics.RecordTransition(string(StateCreated))

	go o.run(ctx, t)
	return t, nil
}

func (o *Orchestrator) run(ctx context.Context, t *Transfer) {
	defer close(t.done)
	defer t.leaveAuthorization()

	s := o.svc
	log := s.logger.With(slog.String("transfer_id", t.id), slog.String("sender_id", t.request.SenderID))

	sub, err := o.prepare(ctx, t)
	if err != nil {
		s.settle(t, StateFailed, cancelledIfDone(ctx, err), log)
		return
	}

	gate := authgate.New(s.verifier, t.request.SenderID)
	required, err := gate.RequiresPIN(ctx)
	if err != nil {
		s.settle(t, StateFailed, cancelledIfDone(ctx, err), log)
		return
	}
	if !required {
		s.settle(t, StateFailed, authgate.ErrPINSetupRequired, log)
		return
	}

	s.advance(t, StateAwaitingAuthorization)
	if err := o.authorize(ctx, t, gate, log); err != nil {
		gate.Reject()
		s.settle(t, StateFailed, err, log)
		return
	}
	t.leaveAuthorization()
	s.advance(t, StateAuthorized)

	// Past this point the caller can no longer abandon the attempt.
	s.submit(context.WithoutCancel(ctx), t, sub, log)
}

func (o *Orchestrator) prepare(ctx context.Context, t *Transfer) (Submission, error) {
	s := o.svc
	req := t.request
	if o.session != nil && req.SenderID != o.session.UserID {
		return Submission{}, invalid("sender_id", "does not match session")
	}
	if err := req.validate(s.limits); err != nil {
		return Submission{}, err
	}

	recipient, err := s.recipients.Resolve(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, identity.ErrRecipientNotFound) {
			return Submission{}, invalid("recipient_id", "not found")
		}
		return Submission{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.UserID == req.SenderID {
		return Submission{}, invalid("recipient_id", "must differ from sender")
	}

	pools, err := s.balances.Snapshot(ctx, req.SenderID)
	if err != nil {
		return Submission{}, fmt.Errorf("snapshot balances: %w", err)
	}
	plan, err := allocation.Allocate(req.Amount, pools)
	if err != nil {
		return Submission{}, err
	}
	t.setPlan(plan)

	return Submission{
		SenderID:    req.SenderID,
		RecipientID: recipient.UserID,
		Amount:      req.Amount,
		Plan:        plan,
		Description: req.Description,
		ServiceType: req.ServiceType,
	}, nil
}

func (o *Orchestrator) authorize(ctx context.Context, t *Transfer, gate *authgate.Gate, log *slog.Logger) error {
	var timeout <-chan time.Time
	if d := o.svc.authTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	var loggedOut <-chan struct{}
	if o.session != nil {
		loggedOut = o.session.Done()
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		case <-t.cancel:
			return ErrCancelled
		case <-loggedOut:
			return fmt.Errorf("%w: %w", ErrCancelled, session.ErrSessionClosed)
		case <-timeout:
			return fmt.Errorf("%w: authorization timed out", ErrCancelled)
		case attempt := <-t.pins:
			err := gate.Verify(ctx, attempt.pin)
			attempt.reply <- err
			switch {
			case err == nil:
				return nil
			case errors.Is(err, authgate.ErrIncorrectPIN):
				log.Info("incorrect pin")
			default:
				log.Warn("pin verification failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Service) submit(ctx context.Context, t *Transfer, sub Submission, log *slog.Logger) {
	sub.TransactionID = s.ids.Generate(sub.SenderID)
	t.setTransactionID(sub.TransactionID)
	s.registry.indexTransaction(t, sub.TransactionID)
	log = log.With(slog.String("transaction_id", sub.TransactionID))
	s.advance(t, StateSubmitting)

	now := s.now()
	rec := Record{
		TransactionID: sub.TransactionID,
		TransferID:    t.id,
		SenderID:      sub.SenderID,
		RecipientID:   sub.RecipientID,
		Amount:        sub.Amount,
		Plan:          sub.Plan,
		Description:   sub.Description,
		ServiceType:   sub.ServiceType,
		State:         StateSubmitting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.journal.Save(ctx, rec); err != nil {
		// Nothing was sent, so failing here cannot lose a debit.
		s.settle(t, StateFailed, &SubmissionError{Err: fmt.Errorf("journal: %w", err)}, log)
		return
	}

	ack, attempts, err := s.send(ctx, sub, log)
	state, failure := resolveAck(ack, err)
	rec.State, rec.Reason, rec.Attempts, rec.UpdatedAt = state, Reason(failure), attempts, s.now()
	if err := s.journal.Save(ctx, rec); err != nil {
		log.Error("journal update failed", slog.Any("error", err), slog.String("state", string(state)))
	}
	s.settle(t, state, failure, log)
}

// send submits sub, resubmitting the same transaction id after transient
// failures until the retry policy is exhausted.
func (s *Service) send(ctx context.Context, sub Submission, log *slog.Logger) (Ack, int, error) {
	limit := s.retry.attempts()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		ack, err := s.backend.SubmitTransfer(ctx, sub)
		if err == nil {
			s.metrics.RecordSubmit(metrics.SubmitOK, time.Since(start))
			return ack, attempt, nil
		}

		se := asSubmissionError(err, attempt)
		if !se.Transient {
			s.metrics.RecordSubmit(metrics.SubmitFailed, time.Since(start))
			return Ack{}, attempt, se
		}
		s.metrics.RecordSubmit(metrics.SubmitTransient, time.Since(start))
		if attempt >= limit {
			return Ack{}, attempt, se
		}

		log.Warn("transient submission failure, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", se.Err),
		)
		if err := sleepContext(ctx, s.retry.delay(attempt-1)); err != nil {
			return Ack{}, attempt, se
		}
	}
}

func asSubmissionError(err error, attempt int) *SubmissionError {
	var se *SubmissionError
	if errors.As(err, &se) {
		return &SubmissionError{Transient: se.Transient, Attempts: attempt, Err: se.Err}
	}
	return &SubmissionError{Attempts: attempt, Err: err}
}

// resolveAck maps a backend answer to a state. A transient failure that
// outlived its retries leaves the outcome unknown, so the attempt stays
// PENDING for reconciliation rather than being reported as failed.
func resolveAck(ack Ack, err error) (State, error) {
	if err != nil {
		if IsTransient(err) {
			return StatePending, err
		}
		return StateFailed, err
	}
	switch ack.Status {
	case AckCompleted:
		return StateSucceeded, nil
	case AckAccepted:
		return StatePending, nil
	case AckRejected:
		return StateFailed, &BackendRejectedError{Reason: ack.Reason}
	default:
		return StateFailed, &SubmissionError{Err: fmt.Errorf("unknown acknowledgement %q", ack.Status)}
	}
}

func (s *Service) advance(t *Transfer, state State) {
	if t.transition(state, nil, s.now()) {
		s.metrics.RecordTransition(string(state))
	}
}

// settle moves t to a settled state and posts the outcome exactly once per
// transition.
func (s *Service) settle(t *Transfer, state State, err error, log *slog.Logger) {
	if !t.transition(state, err, s.now()) {
		return
	}
	s.metrics.RecordTransition(string(state))

	out := t.outcome(s.now())
	t.result.Post(out)
	s.metrics.RecordOutcome(string(state), Reason(err))

	attrs := []any{slog.String("state", string(state)), slog.Int64("amount", t.request.Amount)}
	if out.TransactionID != "" {
		attrs = append(attrs, slog.String("transaction_id", out.TransactionID))
	}
	switch {
	case state == StateSucceeded:
		log.Info("transfer succeeded", attrs...)
	case err == nil:
		log.Info("transfer pending", attrs...)
	default:
		attrs = append(attrs, slog.String("reason", Reason(err)), slog.Any("error", err))
		log.Warn("transfer not completed", attrs...)
	}
}

func cancelledIfDone(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}
