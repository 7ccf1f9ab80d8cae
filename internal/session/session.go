package session

import (
	"sync"
	"time"
)

// Session is a logged-in user's context. It is created by Manager.Login and
// closed by Manager.Logout; work tied to the session watches Done.
type Session struct {
	Token    string
	UserID   string
	Phone    string
	IssuedAt time.Time

	done chan struct{}
	once sync.Once
}

func newSession(rec Record) *Session {
	return &Session{
		Token:    rec.Token,
		UserID:   rec.UserID,
		Phone:    rec.Phone,
		IssuedAt: rec.IssuedAt,
		done:     make(chan struct{}),
	}
}

// New builds a detached session, e.g. for background jobs and tests.
func New(userID string) *Session {
	return newSession(Record{UserID: userID, IssuedAt: time.Now().UTC()})
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) record() Record {
	return Record{Token: s.Token, UserID: s.UserID, Phone: s.Phone, IssuedAt: s.IssuedAt}
}
