package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/p2pcore/internal/identity"
)

var (
	// ErrUnknownSession is returned for tokens that were never issued or have expired.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionClosed is returned when work is attempted on a logged-out session.
	ErrSessionClosed = errors.New("session closed")
)

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds identity.Credentials) (identity.User, error)
}

// Manager owns session lifecycle: Login opens a session, Logout closes it and
// every in-process handle to it.
type Manager struct {
	store  Store
	auth   Authenticator
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	live map[string]*Session
}

// NewManager builds a session manager.
func NewManager(store Store, auth Authenticator, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{store: store, auth: auth, ttl: ttl, logger: logger, live: make(map[string]*Session)}
}

// Login authenticates creds and opens a session.
func (m *Manager) Login(ctx context.Context, creds identity.Credentials) (*Session, error) {
	user, err := m.auth.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	s := newSession(Record{
		Token:    uuid.NewString(),
		UserID:   user.ID,
		Phone:    user.Phone,
		IssuedAt: time.Now().UTC(),
	})
	if err := m.store.Save(ctx, s.record(), m.ttl); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.live[s.Token] = s
	m.mu.Unlock()

	m.logger.Info("session opened", slog.String("user_id", user.ID))
	return s, nil
}

// Resolve returns the open session for token. Sessions issued by another
// process are rehydrated from the store.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnknownSession
	}
	rec, err := m.store.Load(ctx, token)
	if err != nil {
		m.forget(token)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.live[token]; ok {
		return s, nil
	}
	s := newSession(rec)
	m.live[token] = s
	return s, nil
}

// Logout ends the session; transfers still waiting on PIN entry for it stop.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return err
	}
	if s := m.forget(token); s != nil {
		m.logger.Info("session closed", slog.String("user_id", s.UserID))
	}
	return nil
}

func (m *Manager) forget(token string) *Session {
	m.mu.Lock()
	s, ok := m.live[token]
	delete(m.live, token)
	m.mu.Unlock()
	if ok {
		s.Close()
		return s
	}
	return nil
}
